package gitlab_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	fakeTokenConstant         = "glpat-fake-token"
	fakeGroupConstant         = "course"
	fakeTemplateGroupConstant = "course-templates"
)

type fakeGroup struct {
	ID       int
	Name     string
	Path     string
	FullPath string
	Members  map[string]int
}

type fakeIssue struct {
	IID   int
	Title string
	State string
}

type fakeGitLab struct {
	mutex    sync.Mutex
	server   *httptest.Server
	groups   map[string]*fakeGroup
	users    map[string]int
	projects map[string]bool
	issues   map[string][]*fakeIssue
	requests []string
	nextID   int
}

func newFakeGitLab(testInstance *testing.T) *fakeGitLab {
	fake := &fakeGitLab{
		groups:   map[string]*fakeGroup{},
		users:    map[string]int{},
		projects: map[string]bool{},
		issues:   map[string][]*fakeIssue{},
		nextID:   1,
	}
	fake.addGroup(fakeGroupConstant)
	fake.addGroup(fakeTemplateGroupConstant)
	fake.server = httptest.NewServer(http.HandlerFunc(fake.serve))
	testInstance.Cleanup(fake.server.Close)
	return fake
}

func (fake *fakeGitLab) addGroup(fullPath string, members ...string) *fakeGroup {
	fake.nextID++
	segments := strings.Split(fullPath, "/")
	group := &fakeGroup{ID: fake.nextID, Name: segments[len(segments)-1], Path: segments[len(segments)-1], FullPath: fullPath, Members: map[string]int{}}
	for _, member := range members {
		group.Members[member] = 30
	}
	fake.groups[fullPath] = group
	return group
}

func (fake *fakeGitLab) addUsers(usernames ...string) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	for _, username := range usernames {
		fake.nextID++
		fake.users[username] = fake.nextID
	}
}

func (fake *fakeGitLab) addProject(projectPath string) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.projects[projectPath] = true
}

func (fake *fakeGitLab) hasGroup(fullPath string) bool {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	_, found := fake.groups[fullPath]
	return found
}

func (fake *fakeGitLab) accessLevel(fullPath string, username string) int {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	group, found := fake.groups[fullPath]
	if !found {
		return 0
	}
	return group.Members[username]
}

func (fake *fakeGitLab) projectURL(projectPath string) string {
	return fake.server.URL + "/" + projectPath
}

func (fake *fakeGitLab) countRequests(prefix string) int {
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

func (fake *fakeGitLab) serve(responseWriter http.ResponseWriter, request *http.Request) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()

	escapedPath := strings.TrimPrefix(request.URL.EscapedPath(), "/api/v4/")
	rawSegments := strings.Split(escapedPath, "/")
	segments := make([]string, 0, len(rawSegments))
	for _, rawSegment := range rawSegments {
		segment, unescapeError := url.PathUnescape(rawSegment)
		if unescapeError != nil {
			writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": unescapeError.Error()})
			return
		}
		segments = append(segments, segment)
	}
	route := request.Method + " " + strings.Join(routeShape(segments), "/")
	fake.requests = append(fake.requests, request.Method+" "+strings.Join(segments, "/"))

	if request.Header.Get("Private-Token") != fakeTokenConstant {
		writeJSON(responseWriter, http.StatusUnauthorized, map[string]any{"message": "401 Unauthorized"})
		return
	}

	switch route {
	case "GET user":
		writeJSON(responseWriter, http.StatusOK, map[string]any{"id": 1, "username": "instructor"})
	case "GET users":
		username := request.URL.Query().Get("username")
		payload := []map[string]any{}
		if userID, found := fake.users[username]; found {
			payload = append(payload, map[string]any{"id": userID, "username": username})
		}
		writeJSON(responseWriter, http.StatusOK, payload)
	case "GET groups/:id":
		group, found := fake.groups[segments[1]]
		if !found {
			writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 Group Not Found"})
			return
		}
		writeJSON(responseWriter, http.StatusOK, groupPayload(group))
	case "GET groups/:id/subgroups":
		prefix := segments[1] + "/"
		fullPaths := []string{}
		for fullPath := range fake.groups {
			if strings.HasPrefix(fullPath, prefix) && !strings.Contains(strings.TrimPrefix(fullPath, prefix), "/") {
				fullPaths = append(fullPaths, fullPath)
			}
		}
		sort.Strings(fullPaths)
		payload := []map[string]any{}
		for _, fullPath := range fullPaths {
			payload = append(payload, groupPayload(fake.groups[fullPath]))
		}
		writeJSON(responseWriter, http.StatusOK, payload)
	case "GET groups/:id/members":
		group, found := fake.groups[segments[1]]
		if !found {
			writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 Group Not Found"})
			return
		}
		usernames := make([]string, 0, len(group.Members))
		for username := range group.Members {
			usernames = append(usernames, username)
		}
		sort.Strings(usernames)
		payload := []map[string]any{}
		for _, username := range usernames {
			payload = append(payload, map[string]any{"id": fake.users[username], "username": username, "access_level": group.Members[username]})
		}
		writeJSON(responseWriter, http.StatusOK, payload)
	case "POST groups/:id/members":
		fake.handleAddMember(responseWriter, request, segments[1])
	case "POST groups":
		fake.handleCreateGroup(responseWriter, request)
	case "POST projects":
		fake.handleCreateProject(responseWriter, request)
	case "GET projects/:id":
		if !fake.projects[segments[1]] {
			writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 Project Not Found"})
			return
		}
		writeJSON(responseWriter, http.StatusOK, fake.projectPayload(segments[1]))
	case "POST projects/:id/issues":
		fake.handleCreateIssue(responseWriter, request, segments[1])
	case "GET projects/:id/issues":
		state := request.URL.Query().Get("state")
		payload := []map[string]any{}
		for _, issue := range fake.issues[segments[1]] {
			if state != "all" && issue.State != state {
				continue
			}
			payload = append(payload, fake.issuePayload(segments[1], issue))
		}
		writeJSON(responseWriter, http.StatusOK, payload)
	case "PUT projects/:id/issues/:iid":
		fake.handleUpdateIssue(responseWriter, request, segments[1], segments[3])
	default:
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 Not Found: " + route})
	}
}

func routeShape(segments []string) []string {
	shape := append([]string{}, segments...)
	if len(shape) > 1 && (shape[0] == "groups" || shape[0] == "projects") {
		shape[1] = ":id"
	}
	if len(shape) > 3 && shape[2] == "issues" {
		shape[3] = ":iid"
	}
	return shape
}

func (fake *fakeGitLab) handleAddMember(responseWriter http.ResponseWriter, request *http.Request, groupPath string) {
	var body struct {
		UserID      int `json:"user_id"`
		AccessLevel int `json:"access_level"`
	}
	if decodeError := json.NewDecoder(request.Body).Decode(&body); decodeError != nil {
		writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": decodeError.Error()})
		return
	}
	group, found := fake.groups[groupPath]
	if !found {
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 Group Not Found"})
		return
	}
	for username, userID := range fake.users {
		if userID != body.UserID {
			continue
		}
		if _, member := group.Members[username]; member {
			writeJSON(responseWriter, http.StatusConflict, map[string]any{"message": "Member already exists"})
			return
		}
		group.Members[username] = body.AccessLevel
		writeJSON(responseWriter, http.StatusCreated, map[string]any{"id": userID, "username": username, "access_level": body.AccessLevel})
		return
	}
	writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 User Not Found"})
}

func (fake *fakeGitLab) handleCreateGroup(responseWriter http.ResponseWriter, request *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		ParentID int    `json:"parent_id"`
	}
	if decodeError := json.NewDecoder(request.Body).Decode(&body); decodeError != nil {
		writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": decodeError.Error()})
		return
	}
	for _, parent := range fake.groups {
		if parent.ID == body.ParentID {
			group := fake.addGroup(parent.FullPath + "/" + body.Path)
			group.Name = body.Name
			writeJSON(responseWriter, http.StatusCreated, groupPayload(group))
			return
		}
	}
	writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 Parent Not Found"})
}

func (fake *fakeGitLab) handleCreateProject(responseWriter http.ResponseWriter, request *http.Request) {
	var body struct {
		Path        string `json:"path"`
		NamespaceID int    `json:"namespace_id"`
	}
	if decodeError := json.NewDecoder(request.Body).Decode(&body); decodeError != nil {
		writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": decodeError.Error()})
		return
	}
	if body.Path == "unavailable" {
		writeJSON(responseWriter, http.StatusBadGateway, map[string]any{"message": "502 Bad Gateway"})
		return
	}
	for _, namespace := range fake.groups {
		if namespace.ID != body.NamespaceID {
			continue
		}
		projectPath := namespace.FullPath + "/" + body.Path
		if fake.projects[projectPath] {
			writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": map[string]any{
				"name": []string{"has already been taken"},
				"path": []string{"has already been taken"},
			}})
			return
		}
		fake.projects[projectPath] = true
		writeJSON(responseWriter, http.StatusCreated, fake.projectPayload(projectPath))
		return
	}
	writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 Namespace Not Found"})
}

func (fake *fakeGitLab) handleCreateIssue(responseWriter http.ResponseWriter, request *http.Request, projectPath string) {
	var body struct {
		Title string `json:"title"`
	}
	if decodeError := json.NewDecoder(request.Body).Decode(&body); decodeError != nil {
		writeJSON(responseWriter, http.StatusBadRequest, map[string]any{"message": decodeError.Error()})
		return
	}
	issue := &fakeIssue{IID: len(fake.issues[projectPath]) + 1, Title: body.Title, State: "opened"}
	fake.issues[projectPath] = append(fake.issues[projectPath], issue)
	writeJSON(responseWriter, http.StatusCreated, fake.issuePayload(projectPath, issue))
}

func (fake *fakeGitLab) handleUpdateIssue(responseWriter http.ResponseWriter, request *http.Request, projectPath string, rawIID string) {
	var body struct {
		StateEvent string `json:"state_event"`
	}
	_ = json.NewDecoder(request.Body).Decode(&body)
	iid, _ := strconv.Atoi(rawIID)
	for _, issue := range fake.issues[projectPath] {
		if issue.IID == iid {
			if body.StateEvent == "close" {
				issue.State = "closed"
			}
			writeJSON(responseWriter, http.StatusOK, fake.issuePayload(projectPath, issue))
			return
		}
	}
	writeJSON(responseWriter, http.StatusNotFound, map[string]any{"message": "404 Issue Not Found"})
}

func (fake *fakeGitLab) projectPayload(projectPath string) map[string]any {
	segments := strings.Split(projectPath, "/")
	return map[string]any{
		"id":                  len(projectPath),
		"name":                segments[len(segments)-1],
		"path":                segments[len(segments)-1],
		"path_with_namespace": projectPath,
		"web_url":             fake.projectURL(projectPath),
	}
}

func (fake *fakeGitLab) issuePayload(projectPath string, issue *fakeIssue) map[string]any {
	return map[string]any{
		"id":      issue.IID + 1000,
		"iid":     issue.IID,
		"title":   issue.Title,
		"state":   issue.State,
		"web_url": fmt.Sprintf("%s/-/issues/%d", fake.projectURL(projectPath), issue.IID),
	}
}

func groupPayload(group *fakeGroup) map[string]any {
	return map[string]any{"id": group.ID, "name": group.Name, "path": group.Path, "full_path": group.FullPath}
}

func writeJSON(responseWriter http.ResponseWriter, statusCode int, payload any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(statusCode)
	_ = json.NewEncoder(responseWriter).Encode(payload)
}
