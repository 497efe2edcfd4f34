package github_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	fakeTokenConstant             = "ghp_fake_token_value"
	fakeOrganizationConstant      = "course-2026"
	fakeTemplateOrganizationConst = "course-templates"
	fakeExplodingRepoConstant     = "explode"
	fakeUnavailableRepoConstant   = "unavailable"
)

type fakeTeam struct {
	ID          int64
	Name        string
	Slug        string
	Members     []string
	Permissions map[string]string
}

type fakeIssue struct {
	Number int
	Title  string
	Body   string
	State  string
}

type fakeGitHub struct {
	mutex        sync.Mutex
	server       *httptest.Server
	teams        map[string]*fakeTeam
	users        map[string]bool
	repositories map[string]bool
	issues       map[string][]*fakeIssue
	requests     []string
	nextTeamID   int64
}

func newFakeGitHub(testInstance *testing.T) *fakeGitHub {
	fake := &fakeGitHub{
		teams:        map[string]*fakeTeam{},
		users:        map[string]bool{},
		repositories: map[string]bool{},
		issues:       map[string][]*fakeIssue{},
		nextTeamID:   100,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", fake.handleCurrentUser)
	mux.HandleFunc("GET /orgs/{org}", fake.handleOrganization)
	mux.HandleFunc("GET /orgs/{org}/teams", fake.handleListTeams)
	mux.HandleFunc("POST /orgs/{org}/teams", fake.handleCreateTeam)
	mux.HandleFunc("GET /orgs/{org}/teams/{slug}/members", fake.handleListMembers)
	mux.HandleFunc("PUT /orgs/{org}/teams/{slug}/memberships/{username}", fake.handleAddMembership)
	mux.HandleFunc("PUT /orgs/{org}/teams/{slug}/repos/{owner}/{repo}", fake.handleGrantRepository)
	mux.HandleFunc("GET /users/{username}", fake.handleUser)
	mux.HandleFunc("POST /orgs/{org}/repos", fake.handleCreateRepository)
	mux.HandleFunc("GET /repos/{owner}/{repo}", fake.handleGetRepository)
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues", fake.handleCreateIssue)
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues", fake.handleListIssues)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/issues/{number}", fake.handleEditIssue)

	fake.server = httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		fake.mutex.Lock()
		fake.requests = append(fake.requests, request.Method+" "+request.URL.Path)
		fake.mutex.Unlock()
		if request.Header.Get("Authorization") != "Bearer "+fakeTokenConstant {
			writeJSON(responseWriter, http.StatusUnauthorized, map[string]any{"message": "Bad credentials"})
			return
		}
		mux.ServeHTTP(responseWriter, request)
	}))
	testInstance.Cleanup(fake.server.Close)
	return fake
}

func (fake *fakeGitHub) addTeam(name string, members ...string) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.nextTeamID++
	fake.teams[name] = &fakeTeam{ID: fake.nextTeamID, Name: name, Slug: name, Members: members, Permissions: map[string]string{}}
}

func (fake *fakeGitHub) addUsers(usernames ...string) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	for _, username := range usernames {
		fake.users[username] = true
	}
}

func (fake *fakeGitHub) addRepository(name string) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.repositories[name] = true
}

func (fake *fakeGitHub) countRequests(prefix string) int {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	count := 0
	for _, request := range fake.requests {
		if strings.HasPrefix(request, prefix) {
			count++
		}
	}
	return count
}

func (fake *fakeGitHub) repositoryURL(name string) string {
	return fake.server.URL + "/" + fakeOrganizationConstant + "/" + name
}

func (fake *fakeGitHub) handleCurrentUser(responseWriter http.ResponseWriter, request *http.Request) {
	writeJSON(responseWriter, http.StatusOK, map[string]any{"login": "instructor"})
}

func (fake *fakeGitHub) handleOrganization(responseWriter http.ResponseWriter, request *http.Request) {
	organization := request.PathValue("org")
	if organization != fakeOrganizationConstant && organization != fakeTemplateOrganizationConst {
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	writeJSON(responseWriter, http.StatusOK, map[string]any{"login": organization})
}

func (fake *fakeGitHub) handleListTeams(responseWriter http.ResponseWriter, request *http.Request) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	names := make([]string, 0, len(fake.teams))
	for name := range fake.teams {
		names = append(names, name)
	}
	sort.Strings(names)
	payload := make([]map[string]any, 0, len(names))
	for _, name := range names {
		team := fake.teams[name]
		payload = append(payload, map[string]any{"id": team.ID, "name": team.Name, "slug": team.Slug, "permission": "pull"})
	}
	writeJSON(responseWriter, http.StatusOK, payload)
}

func (fake *fakeGitHub) handleCreateTeam(responseWriter http.ResponseWriter, request *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if decodeError := json.NewDecoder(request.Body).Decode(&body); decodeError != nil {
		writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": decodeError.Error()})
		return
	}
	fake.addTeam(body.Name)
	fake.mutex.Lock()
	team := fake.teams[body.Name]
	fake.mutex.Unlock()
	writeJSON(responseWriter, http.StatusCreated, map[string]any{"id": team.ID, "name": team.Name, "slug": team.Slug})
}

func (fake *fakeGitHub) handleListMembers(responseWriter http.ResponseWriter, request *http.Request) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	team, found := fake.teams[request.PathValue("slug")]
	if !found {
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	payload := make([]map[string]any, 0, len(team.Members))
	for _, member := range team.Members {
		payload = append(payload, map[string]any{"login": member})
	}
	writeJSON(responseWriter, http.StatusOK, payload)
}

func (fake *fakeGitHub) handleAddMembership(responseWriter http.ResponseWriter, request *http.Request) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	team, found := fake.teams[request.PathValue("slug")]
	if !found {
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	team.Members = append(team.Members, request.PathValue("username"))
	writeJSON(responseWriter, http.StatusOK, map[string]any{"state": "active", "role": "member"})
}

func (fake *fakeGitHub) handleGrantRepository(responseWriter http.ResponseWriter, request *http.Request) {
	var body struct {
		Permission string `json:"permission"`
	}
	_ = json.NewDecoder(request.Body).Decode(&body)
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	team, found := fake.teams[request.PathValue("slug")]
	if !found {
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	team.Permissions[request.PathValue("repo")] = body.Permission
	responseWriter.WriteHeader(http.StatusNoContent)
}

func (fake *fakeGitHub) handleUser(responseWriter http.ResponseWriter, request *http.Request) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	username := request.PathValue("username")
	if !fake.users[username] {
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	writeJSON(responseWriter, http.StatusOK, map[string]any{"login": username})
}

func (fake *fakeGitHub) handleCreateRepository(responseWriter http.ResponseWriter, request *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if decodeError := json.NewDecoder(request.Body).Decode(&body); decodeError != nil {
		writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": decodeError.Error()})
		return
	}
	switch body.Name {
	case fakeExplodingRepoConstant:
		writeJSON(responseWriter, http.StatusForbidden, map[string]any{"message": "Resource not accessible by integration"})
		return
	case fakeUnavailableRepoConstant:
		writeJSON(responseWriter, http.StatusServiceUnavailable, map[string]any{"message": "Service Unavailable"})
		return
	}

	fake.mutex.Lock()
	exists := fake.repositories[body.Name]
	fake.repositories[body.Name] = true
	fake.mutex.Unlock()
	if exists {
		writeJSON(responseWriter, http.StatusUnprocessableEntity, map[string]any{
			"message": "Repository creation failed.",
			"errors":  []map[string]any{{"resource": "Repository", "code": "custom", "field": "name", "message": "name already exists on this account"}},
		})
		return
	}
	writeJSON(responseWriter, http.StatusCreated, map[string]any{"name": body.Name, "html_url": fake.repositoryURL(body.Name)})
}

func (fake *fakeGitHub) handleGetRepository(responseWriter http.ResponseWriter, request *http.Request) {
	name := request.PathValue("repo")
	fake.mutex.Lock()
	exists := fake.repositories[name]
	fake.mutex.Unlock()
	if !exists {
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	writeJSON(responseWriter, http.StatusOK, map[string]any{"name": name, "html_url": fake.repositoryURL(name)})
}

func (fake *fakeGitHub) handleCreateIssue(responseWriter http.ResponseWriter, request *http.Request) {
	var body struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if decodeError := json.NewDecoder(request.Body).Decode(&body); decodeError != nil {
		writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": decodeError.Error()})
		return
	}
	repository := request.PathValue("repo")
	fake.mutex.Lock()
	issue := &fakeIssue{Number: len(fake.issues[repository]) + 1, Title: body.Title, Body: body.Body, State: "open"}
	fake.issues[repository] = append(fake.issues[repository], issue)
	fake.mutex.Unlock()
	writeJSON(responseWriter, http.StatusCreated, fake.issuePayload(repository, issue))
}

func (fake *fakeGitHub) handleListIssues(responseWriter http.ResponseWriter, request *http.Request) {
	repository := request.PathValue("repo")
	state := request.URL.Query().Get("state")
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	payload := []map[string]any{}
	for _, issue := range fake.issues[repository] {
		if state != "all" && issue.State != state {
			continue
		}
		payload = append(payload, fake.issuePayload(repository, issue))
	}
	writeJSON(responseWriter, http.StatusOK, payload)
}

func (fake *fakeGitHub) handleEditIssue(responseWriter http.ResponseWriter, request *http.Request) {
	var body struct {
		State string `json:"state"`
	}
	_ = json.NewDecoder(request.Body).Decode(&body)
	repository := request.PathValue("repo")
	number, _ := strconv.Atoi(request.PathValue("number"))
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	for _, issue := range fake.issues[repository] {
		if issue.Number == number {
			issue.State = body.State
			writeJSON(responseWriter, http.StatusOK, fake.issuePayload(repository, issue))
			return
		}
	}
	writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "Not Found"})
}

func (fake *fakeGitHub) issuePayload(repository string, issue *fakeIssue) map[string]any {
	return map[string]any{
		"number":   issue.Number,
		"title":    issue.Title,
		"body":     issue.Body,
		"state":    issue.State,
		"html_url": fmt.Sprintf("%s/issues/%d", fake.repositoryURL(repository), issue.Number),
	}
}

func writeJSON(responseWriter http.ResponseWriter, statusCode int, payload any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(statusCode)
	_ = json.NewEncoder(responseWriter).Encode(payload)
}
