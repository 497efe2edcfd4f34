// Package platform defines the capability contract every code-hosting backend
// implements, the values exchanged across it, and the closed error taxonomy
// backends translate their failures into.
//
// Backends embed Unsupported so omitted operations fail with an
// UnsupportedOperationError, assert the Backend interface at compile time, and
// call VerifyContract from their constructors so no backend-specific exported
// method leaks into the polymorphic surface.
package platform
