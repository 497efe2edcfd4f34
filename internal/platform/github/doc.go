// Package github implements the platform contract against the GitHub REST API.
//
// Teams are organisation teams, student repositories live directly in the
// organisation and are named <team>-<template>.
package github
