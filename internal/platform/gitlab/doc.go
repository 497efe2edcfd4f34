// Package gitlab implements the platform contract against the GitLab REST API.
//
// The organisation is a group, teams are its subgroups and a student
// repository lives in its team's subgroup. Requests are spaced by the
// configured minimum interval.
package gitlab
