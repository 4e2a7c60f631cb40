// Package mock implements an in-process HMC for tests: an HTTPS endpoint
// speaking the Web Services API session, resource and job protocols
// against an in-memory resource tree, plus an in-memory notification hub
// replacing the STOMP bus.
package mock

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhmcio/zhmcgo/core"
)

// Topic names issued to every mock session at logon.
const (
	ObjectTopic = "mock.object.notifications"
	JobTopic    = "mock.job.notifications"
)

// resourceEntry is one resource of the mock's tree.
type resourceEntry struct {
	uri      string
	class    string
	uriProp  string // object-uri or element-uri
	listPath string // the collection the entry belongs to
	props    map[string]interface{}
}

// collection is one list endpoint with its member URIs.
type collection struct {
	class     string
	uriProp   string
	uriPrefix string
	uris      []string
}

type mockJob struct {
	status     string
	statusCode int
	reasonCode int
	results    map[string]interface{}
}

type jobOutcome struct {
	status     string
	statusCode int
	reasonCode int
	message    string
}

// Server is a mock HMC. Zero resources are defined initially; populate it
// with ApplyDefinition or the Add methods, then hand Host() to a session.
type Server struct {
	ts  *httptest.Server
	hub *Hub

	mu          sync.Mutex
	hmcName     string
	hmcVersion  string
	apiMajor    int
	apiMinor    int
	userid      string
	password    string
	sessions    map[string]bool
	resources   map[string]*resourceEntry
	collections map[string]*collection
	jobs        map[string]*mockJob
	jobDelay    time.Duration
	nextOutcome *jobOutcome
	forceExpire int
	busy        map[string]int
	wsDisabled  bool
	hits        map[string]int
}

// NewServer starts a mock HMC accepting the given credentials.
func NewServer(userid, password string) *Server {
	s := &Server{
		hub:         NewHub(),
		hmcName:     "mockhmc",
		hmcVersion:  "2.16.0",
		apiMajor:    4,
		apiMinor:    10,
		userid:      userid,
		password:    password,
		sessions:    make(map[string]bool),
		resources:   make(map[string]*resourceEntry),
		collections: make(map[string]*collection),
		jobs:        make(map[string]*mockJob),
		busy:        make(map[string]int),
		hits:        make(map[string]int),
	}
	s.collections["/api/cpcs"] = &collection{class: "cpc", uriProp: core.PropObjectURI, uriPrefix: "/api/cpcs/"}
	s.collections["/api/storage-groups"] = &collection{class: "storage-group", uriProp: core.PropObjectURI, uriPrefix: "/api/storage-groups/"}
	s.ts = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	return s
}

// Host returns the host:port the mock listens on.
func (s *Server) Host() string {
	return s.ts.Listener.Addr().String()
}

// Hub returns the mock's notification bus.
func (s *Server) Hub() *Hub { return s.hub }

// NotificationSourceFactory returns the factory a session needs to run
// auto-update against the mock's hub.
func (s *Server) NotificationSourceFactory() core.NotificationSourceFactory {
	return func(topic string) (core.NotificationSource, error) {
		return s.hub.Subscribe(topic), nil
	}
}

// Close shuts the mock down.
func (s *Server) Close() {
	s.ts.Close()
}

// SetJobDelay delays job completion, keeping jobs observable in the
// running state.
func (s *Server) SetJobDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobDelay = d
}

// FailNextJob makes the next started job end in the given terminal status
// with the given error fields.
func (s *Server) FailNextJob(status string, statusCode, reasonCode int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOutcome = &jobOutcome{status: status, statusCode: statusCode, reasonCode: reasonCode, message: message}
}

// ExpireSessions invalidates every issued session token, so the next
// authenticated request answers 403 reason 5.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
}

// ForceTokenExpiry answers 403 reason 5 to the next n authenticated
// requests regardless of their token.
func (s *Server) ForceTokenExpiry(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceExpire = n
}

// InjectBusy answers 409 reason 1 to the next n requests of the given URI.
func (s *Server) InjectBusy(uri string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy[uri] = n
}

// SetWSDisabled makes the mock answer every request with the HTML page a
// console serves when its Web Services interface is off.
func (s *Server) SetWSDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wsDisabled = disabled
}

// Hits returns how often the mock served a method and path, e.g.
// ("GET", "/api/cpcs").
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// SessionCount returns the number of live session tokens.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Resource returns a copy of the properties of the resource at uri, and
// whether it exists.
func (s *Server) Resource(uri string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.resources[uri]
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(e.props))
	for k, v := range e.props {
		out[k] = v
	}
	return out, true
}

// ApplyDefinition populates the mock from a definition.
func (s *Server) ApplyDefinition(def *Definition) {
	if def.HMC.Name != "" {
		s.mu.Lock()
		s.hmcName = def.HMC.Name
		s.hmcVersion = def.HMC.Version
		s.apiMajor = def.HMC.APIMajor
		s.apiMinor = def.HMC.APIMinor
		s.mu.Unlock()
	}
	for _, cpc := range def.CPCs {
		cpcURI := s.AddCPC(cpc.Properties)
		for _, p := range cpc.Partitions {
			partURI := s.AddPartition(cpcURI, p.Properties)
			for _, n := range p.Nics {
				s.AddNic(partURI, n.Properties)
			}
		}
		for _, l := range cpc.Lpars {
			s.AddLpar(cpcURI, l.Properties)
		}
		for _, a := range cpc.Adapters {
			s.AddAdapter(cpcURI, a.Properties)
		}
	}
	for _, g := range def.StorageGroups {
		s.AddStorageGroup(g.Properties)
	}
}

// AddCPC defines a CPC and its child collections, returning its URI.
func (s *Server) AddCPC(props map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uri := s.addEntry("/api/cpcs", "cpc", props)
	s.collections[uri+"/partitions"] = &collection{class: "partition", uriProp: core.PropObjectURI, uriPrefix: "/api/partitions/"}
	s.collections[uri+"/logical-partitions"] = &collection{class: "logical-partition", uriProp: core.PropObjectURI, uriPrefix: "/api/logical-partitions/"}
	s.collections[uri+"/adapters"] = &collection{class: "adapter", uriProp: core.PropObjectURI, uriPrefix: "/api/adapters/"}
	return uri
}

// AddPartition defines a partition under a CPC, returning its URI.
func (s *Server) AddPartition(cpcURI string, props map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uri := s.addEntry(cpcURI+"/partitions", "partition", props)
	s.collections[uri+"/nics"] = &collection{class: "nic", uriProp: core.PropElementURI, uriPrefix: uri + "/nics/"}
	return uri
}

// AddLpar defines a classic-mode LPAR under a CPC, returning its URI.
func (s *Server) AddLpar(cpcURI string, props map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEntry(cpcURI+"/logical-partitions", "logical-partition", props)
}

// AddAdapter defines an adapter under a CPC, returning its URI.
func (s *Server) AddAdapter(cpcURI string, props map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEntry(cpcURI+"/adapters", "adapter", props)
}

// AddNic defines a NIC under a partition, returning its element URI.
func (s *Server) AddNic(partitionURI string, props map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEntry(partitionURI+"/nics", "nic", props)
}

// AddStorageGroup defines a storage group, returning its URI.
func (s *Server) AddStorageGroup(props map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEntry("/api/storage-groups", "storage-group", props)
}

// addEntry creates a resource in a collection. Caller holds s.mu.
func (s *Server) addEntry(listPath, class string, props map[string]interface{}) string {
	col := s.collections[listPath]
	uri := col.uriPrefix + uuid.NewString()
	copied := make(map[string]interface{}, len(props)+3)
	for k, v := range props {
		copied[k] = v
	}
	copied[col.uriProp] = uri
	copied[core.PropClass] = class
	e := &resourceEntry{
		uri:      uri,
		class:    class,
		uriProp:  col.uriProp,
		listPath: listPath,
		props:    copied,
	}
	s.resources[uri] = e
	col.uris = append(col.uris, uri)
	return uri
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status, reason int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"http-status": status,
		"reason":      reason,
		"message":     message,
	})
}

const wsDisabledPage = `<html><body>The Web Services API is not enabled on this Hardware Management Console.</body></html>`

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.Method+" "+r.URL.Path]++
	disabled := s.wsDisabled
	s.mu.Unlock()
	if disabled {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, wsDisabledPage)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/api/version" && r.Method == http.MethodGet:
		s.handleVersion(w)
		return
	case path == "/api/sessions" && r.Method == http.MethodPost:
		s.handleLogon(w, r)
		return
	}

	if !s.authenticate(w, r) {
		return
	}
	if s.answerBusy(w, path) {
		return
	}

	if path == "/api/sessions/this-session" && r.Method == http.MethodDelete {
		s.handleLogoff(w, r)
		return
	}
	if idx := strings.Index(path, "/operations/"); idx > 0 {
		s.handleOperation(w, r, path[:idx], path[idx+len("/operations/"):])
		return
	}
	if strings.HasPrefix(path, "/api/jobs/") {
		s.handleJob(w, r, path)
		return
	}

	s.mu.Lock()
	_, isCollection := s.collections[path]
	_, isResource := s.resources[path]
	s.mu.Unlock()

	switch {
	case isCollection && r.Method == http.MethodGet:
		s.handleList(w, r, path)
	case isCollection && r.Method == http.MethodPost:
		s.handleCreate(w, r, path)
	case isResource && r.Method == http.MethodGet:
		s.handleGet(w, path)
	case isResource && r.Method == http.MethodPost:
		s.handleUpdate(w, r, path)
	case isResource && r.Method == http.MethodDelete:
		s.handleDelete(w, path)
	default:
		writeError(w, http.StatusNotFound, 1, "no resource at "+path)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter) {
	s.mu.Lock()
	body := map[string]interface{}{
		"api-major-version": s.apiMajor,
		"api-minor-version": s.apiMinor,
		"hmc-version":       s.hmcVersion,
		"hmc-name":          s.hmcName,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLogon(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Userid      string `json:"userid"`
		Password    string `json:"password"`
		NewPassword string `json:"new-password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, 1, "malformed logon body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if creds.Userid != s.userid || creds.Password != s.password {
		writeError(w, http.StatusForbidden, 4, "userid or password is not valid")
		return
	}
	if creds.NewPassword != "" {
		s.password = creds.NewPassword
	}
	token := uuid.NewString()
	s.sessions[token] = true
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api-session":            token,
		"api-major-version":      s.apiMajor,
		"api-minor-version":      s.apiMinor,
		"notification-topic":     ObjectTopic,
		"job-notification-topic": JobTopic,
	})
}

func (s *Server) handleLogoff(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.sessions, r.Header.Get("X-API-Session"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// authenticate enforces the session token, answering 403 reason 5 for
// missing, unknown or deliberately expired tokens.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) bool {
	token := r.Header.Get("X-API-Session")
	s.mu.Lock()
	if s.forceExpire > 0 {
		s.forceExpire--
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, 5, "API session token expired")
		return false
	}
	valid := s.sessions[token]
	s.mu.Unlock()
	if !valid {
		writeError(w, http.StatusForbidden, 5, "no valid API session")
		return false
	}
	return true
}

func (s *Server) answerBusy(w http.ResponseWriter, path string) bool {
	s.mu.Lock()
	n := s.busy[path]
	if n > 0 {
		s.busy[path] = n - 1
	}
	s.mu.Unlock()
	if n > 0 {
		writeError(w, http.StatusConflict, 1, "the request is not currently authorized, try again")
		return true
	}
	return false
}

// listProps is the reduced property set a list operation returns.
var listProps = []string{core.PropName, core.PropStatus, "type", core.PropClass}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, path string) {
	filter := core.NewFilter()
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			filter = filter.Where(key, values[0])
		} else {
			filter = filter.Where(key, values)
		}
	}

	s.mu.Lock()
	col := s.collections[path]
	entries := make([]*resourceEntry, 0, len(col.uris))
	for _, uri := range col.uris {
		entries = append(entries, s.resources[uri])
	}
	s.mu.Unlock()

	items := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		s.mu.Lock()
		props := make(map[string]interface{}, len(e.props))
		for k, v := range e.props {
			props[k] = v
		}
		s.mu.Unlock()

		ok, err := filter.Matches(props)
		if err != nil {
			writeError(w, http.StatusBadRequest, 1, err.Error())
			return
		}
		if !ok {
			continue
		}
		item := map[string]interface{}{e.uriProp: e.uri}
		for _, p := range listProps {
			if v, present := props[p]; present {
				item[p] = v
			}
		}
		items = append(items, item)
	}

	field := path[strings.LastIndex(path, "/")+1:]
	writeJSON(w, http.StatusOK, map[string]interface{}{field: items})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, path string) {
	var props map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		writeError(w, http.StatusBadRequest, 1, "malformed request body")
		return
	}

	s.mu.Lock()
	col := s.collections[path]
	class := col.class
	uri := s.addEntry(path, class, props)
	uriProp := col.uriProp
	if class == "partition" {
		s.collections[uri+"/nics"] = &collection{class: "nic", uriProp: core.PropElementURI, uriPrefix: uri + "/nics/"}
	}
	name, _ := props[core.PropName].(string)
	s.mu.Unlock()

	s.hub.Publish(ObjectTopic, core.Notification{
		Headers: map[string]string{
			"notification-type": core.NotificationInventoryChange,
			"object-uri":        uri,
			"class":             class,
			"action":            core.InventoryAdd,
		},
		Body: map[string]interface{}{
			"class":    class,
			"name":     name,
			uriProp:    uri,
		},
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{uriProp: uri})
}

func (s *Server) handleGet(w http.ResponseWriter, path string) {
	s.mu.Lock()
	e, ok := s.resources[path]
	if !ok {
		// The routing check and this lookup are separate critical
		// sections; a concurrent delete can win in between.
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, 1, "no resource at "+path)
		return
	}
	props := make(map[string]interface{}, len(e.props))
	for k, v := range e.props {
		props[k] = v
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, props)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, path string) {
	var diff map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&diff); err != nil {
		writeError(w, http.StatusBadRequest, 1, "malformed request body")
		return
	}
	s.mu.Lock()
	e, ok := s.resources[path]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, 1, "no resource at "+path)
		return
	}
	for k, v := range diff {
		e.props[k] = v
	}
	class := e.class
	s.mu.Unlock()

	s.publishChange(core.NotificationPropertyChange, path, class, diff)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, path string) {
	s.mu.Lock()
	e, ok := s.resources[path]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, 1, "no resource at "+path)
		return
	}
	delete(s.resources, path)
	col := s.collections[e.listPath]
	for i, uri := range col.uris {
		if uri == path {
			col.uris = append(col.uris[:i], col.uris[i+1:]...)
			break
		}
	}
	class := e.class
	s.mu.Unlock()

	s.hub.Publish(ObjectTopic, core.Notification{
		Headers: map[string]string{
			"notification-type": core.NotificationInventoryChange,
			"object-uri":        path,
			"class":             class,
			"action":            core.InventoryRemove,
		},
		Body: map[string]interface{}{"class": class},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, path string) {
	s.mu.Lock()
	job, ok := s.jobs[path]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, 1, "no job at "+path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		body := map[string]interface{}{
			"status":          job.status,
			"job-status-code": job.statusCode,
			"job-reason-code": job.reasonCode,
		}
		if job.results != nil {
			body["job-results"] = job.results
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, body)
	case http.MethodDelete:
		if !core.JobTerminal(job.status) {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, 1, "job is still running")
			return
		}
		delete(s.jobs, path)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, 1, "unsupported job request")
	}
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request, target, op string) {
	if strings.HasPrefix(target, "/api/jobs/") && op == "cancel" {
		s.cancelJob(w, target)
		return
	}

	s.mu.Lock()
	e, ok := s.resources[target]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, 1, "no resource at "+target)
		return
	}

	switch op {
	case "start":
		s.asyncStatusOperation(w, e, []string{core.PartitionStatusStopped}, core.PartitionStatusActive)
	case "stop":
		s.asyncStatusOperation(w, e, []string{core.PartitionStatusActive, core.PartitionStatusDegraded}, core.PartitionStatusStopped)
	case "activate":
		s.asyncStatusOperation(w, e, nil, core.LparStatusNotOperating)
	case "deactivate":
		s.asyncStatusOperation(w, e, nil, core.LparStatusNotActivated)
	case "load":
		s.asyncStatusOperation(w, e, []string{core.LparStatusNotOperating}, core.LparStatusOperating)
	case "mount-iso-image":
		s.mountISO(w, r, e)
	case "unmount-iso-image":
		s.updateProps(e, map[string]interface{}{"boot-iso-image-name": nil, "boot-iso-ins-file": nil})
		w.WriteHeader(http.StatusNoContent)
	case "attach-storage-group":
		s.attachStorage(w, r, e, true)
	case "detach-storage-group":
		s.attachStorage(w, r, e, false)
	default:
		writeError(w, http.StatusNotFound, 1, "unknown operation "+op)
	}
}

// asyncStatusOperation validates the current status, starts a job and
// answers 202 with the job URI. The job drives the status transition.
func (s *Server) asyncStatusOperation(w http.ResponseWriter, e *resourceEntry, from []string, to string) {
	s.mu.Lock()
	current, _ := e.props[core.PropStatus].(string)
	if len(from) > 0 {
		allowed := false
		for _, f := range from {
			if current == f {
				allowed = true
				break
			}
		}
		if !allowed {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, 6, "operation not permitted in status "+current)
			return
		}
	}

	jobURI := "/api/jobs/" + uuid.NewString()
	job := &mockJob{status: core.JobStatusRunning}
	s.jobs[jobURI] = job
	outcome := s.nextOutcome
	s.nextOutcome = nil
	delay := s.jobDelay
	s.mu.Unlock()

	go s.finishJob(jobURI, e, to, outcome, delay)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job-uri": jobURI})
}

func (s *Server) finishJob(jobURI string, e *resourceEntry, to string, outcome *jobOutcome, delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	job, ok := s.jobs[jobURI]
	if !ok || core.JobTerminal(job.status) {
		s.mu.Unlock()
		return
	}
	if outcome != nil {
		job.status = outcome.status
		job.statusCode = outcome.statusCode
		job.reasonCode = outcome.reasonCode
		job.results = map[string]interface{}{"message": outcome.message}
		s.mu.Unlock()
		return
	}
	job.status = core.JobStatusComplete
	e.props[core.PropStatus] = to
	uri, class := e.uri, e.class
	s.mu.Unlock()

	s.publishChange(core.NotificationStatusChange, uri, class, map[string]interface{}{core.PropStatus: to})
	s.hub.Publish(JobTopic, core.Notification{
		Headers: map[string]string{
			"notification-type": core.NotificationJobCompletion,
			"job-uri":           jobURI,
		},
		Body: map[string]interface{}{"job-uri": jobURI, "status": core.JobStatusComplete},
	})
}

func (s *Server) cancelJob(w http.ResponseWriter, jobURI string) {
	s.mu.Lock()
	job, ok := s.jobs[jobURI]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, 1, "no job at "+jobURI)
		return
	}
	if !core.JobTerminal(job.status) {
		job.status = core.JobStatusCanceled
		job.results = map[string]interface{}{"message": "job canceled"}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) mountISO(w http.ResponseWriter, r *http.Request, e *resourceEntry) {
	image, err := io.ReadAll(r.Body)
	if err != nil || len(image) == 0 {
		writeError(w, http.StatusBadRequest, 1, "missing image body")
		return
	}
	q := r.URL.Query()
	s.updateProps(e, map[string]interface{}{
		"boot-iso-image-name": q.Get("image-name"),
		"boot-iso-ins-file":   q.Get("ins-file-name"),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) attachStorage(w http.ResponseWriter, r *http.Request, e *resourceEntry, attach bool) {
	var body struct {
		StorageGroupURI string `json:"storage-group-uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.StorageGroupURI == "" {
		writeError(w, http.StatusBadRequest, 1, "missing storage-group-uri")
		return
	}

	s.mu.Lock()
	current, _ := e.props["storage-group-uris"].([]interface{})
	var updated []interface{}
	if attach {
		updated = append(append(updated, current...), body.StorageGroupURI)
	} else {
		for _, u := range current {
			if u != body.StorageGroupURI {
				updated = append(updated, u)
			}
		}
	}
	e.props["storage-group-uris"] = updated
	s.mu.Unlock()

	s.publishChange(core.NotificationPropertyChange, e.uri, e.class, map[string]interface{}{"storage-group-uris": updated})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateProps(e *resourceEntry, diff map[string]interface{}) {
	s.mu.Lock()
	for k, v := range diff {
		if v == nil {
			delete(e.props, k)
		} else {
			e.props[k] = v
		}
	}
	s.mu.Unlock()
}

// publishChange emits a property-change or status-change notification in
// the HMC's change-report format.
func (s *Server) publishChange(notifType, uri, class string, diff map[string]interface{}) {
	reports := make([]interface{}, 0, len(diff))
	for name, value := range diff {
		reports = append(reports, map[string]interface{}{
			"property-name": name,
			"new-value":     value,
		})
	}
	s.hub.Publish(ObjectTopic, core.Notification{
		Headers: map[string]string{
			"notification-type": notifType,
			"object-uri":        uri,
			"class":             class,
		},
		Body: map[string]interface{}{
			"class":          class,
			"change-reports": reports,
		},
	})
}
