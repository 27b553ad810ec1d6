// Package crmtest runs an in-process fake of the case-management API for tests.
package crmtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// TenantCode is the application code the fake expects in the "cfn" parameter.
const TenantCode = "APPTEST"

// File is a document served by the fake.
type File struct {
	ContentType string
	Body        []byte
	Status      int // default 200
}

// Server is a fake case-management API.
type Server struct {
	*httptest.Server

	Username string
	Password string
	Token    string

	mu          sync.Mutex
	records     map[string][]any          // keyword → order records
	rawSearch   map[string]string         // keyword → raw JSON response
	searchFail  map[string]int            // keyword → HTTP status
	details     map[string]map[string]any // order id → existing-orders section
	rawDetail   map[string]string
	detailFail  map[string]int
	files       map[string]File // request path → file
	apiCalls    int
	fileCalls   int
	searchOrder []string
}

// New starts a fake with credentials user/pass and token "test-token".
func New() *Server {
	s := &Server{
		Username:   "user",
		Password:   "pass",
		Token:      "test-token",
		records:    make(map[string][]any),
		rawSearch:  make(map[string]string),
		searchFail: make(map[string]int),
		details:    make(map[string]map[string]any),
		rawDetail:  make(map[string]string),
		detailFail: make(map[string]int),
		files:      make(map[string]File),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL is the API base URL with a trailing slash.
func (s *Server) BaseURL() string { return s.URL + "/" }

// DownloadBaseURL is the attachment download base.
func (s *Server) DownloadBaseURL() string { return s.URL + "/files/" }

// AddOrder registers an order under keyword.
func (s *Server) AddOrder(keyword, orderID, carrier string) {
	s.AddRecord(keyword, map[string]any{"ID": orderID, "Carrier": carrier})
}

// AddRecord registers an arbitrary search record under keyword.
func (s *Server) AddRecord(keyword string, rec any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[keyword] = append(s.records[keyword], rec)
}

// SetRawSearch makes the search for keyword return body verbatim.
func (s *Server) SetRawSearch(keyword, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawSearch[keyword] = body
}

// FailSearch makes the search for keyword answer with status.
func (s *Server) FailSearch(keyword string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchFail[keyword] = status
}

// FailDetail makes the detail call for orderID answer with status.
func (s *Server) FailDetail(orderID string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailFail[orderID] = status
}

// SetRawDetail makes the detail call for orderID return body verbatim.
func (s *Server) SetRawDetail(orderID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawDetail[orderID] = body
}

func (s *Server) section(orderID string) map[string]any {
	sec, ok := s.details[orderID]
	if !ok {
		sec = map[string]any{"Attachments": []any{}, "Links": []any{}}
		s.details[orderID] = sec
	}
	return sec
}

// AddAttachment registers an attachment on orderID and serves its content.
func (s *Server) AddAttachment(orderID, id, fileName, folder string, body []byte) {
	s.AddAttachmentEntry(orderID, map[string]any{"ID": id, "FileName": fileName, "FolderPath": folder})
	path := "/files/" + strings.Trim(folder, "/") + "/" + id + "_" + fileName
	s.ServeFile(path, File{ContentType: "application/octet-stream", Body: body})
}

// AddAttachmentEntry registers a raw attachment entry on orderID.
func (s *Server) AddAttachmentEntry(orderID string, entry any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.section(orderID)
	sec["Attachments"] = append(sec["Attachments"].([]any), entry)
}

// AddLink registers a link on orderID pointing to rel.
func (s *Server) AddLink(orderID, name, rel string) {
	s.AddLinkEntry(orderID, map[string]any{"Name": name, "URL": rel})
}

// AddLinkEntry registers a raw link entry on orderID.
func (s *Server) AddLinkEntry(orderID string, entry any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.section(orderID)
	sec["Links"] = append(sec["Links"].([]any), entry)
}

// ServeFile serves f at path.
func (s *Server) ServeFile(path string, f File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = f
}

// APICalls counts login/search/detail requests received.
func (s *Server) APICalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiCalls
}

// FileCalls counts document requests received.
func (s *Server) FileCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileCalls
}

// Calls counts every request received.
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiCalls + s.fileCalls
}

// Searches lists the search keywords in arrival order.
func (s *Server) Searches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.searchOrder...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/custom/apps/api.php" {
		s.mu.Lock()
		s.apiCalls++
		s.mu.Unlock()
		if _, ok := r.URL.Query()["login"]; ok {
			s.login(w, r)
			return
		}
		s.orderManager(w, r)
		return
	}

	s.mu.Lock()
	s.fileCalls++
	f, ok := s.files[r.URL.Path]
	s.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	if f.Status != 0 && f.Status != http.StatusOK {
		http.Error(w, "failure", f.Status)
		return
	}
	if f.ContentType != "" {
		w.Header().Set("Content-Type", f.ContentType)
	}
	w.Write(f.Body)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if r.Method != http.MethodPost || json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Username != s.Username || req.Password != s.Password {
		http.Error(w, `{"error":"invalid"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{"data": map[string]any{"token": s.Token}})
}

func (s *Server) orderManager(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	if q.Get("afn") != "ordermanager" || q.Get("cfn") != TenantCode {
		http.Error(w, "unknown app", http.StatusNotFound)
		return
	}
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if kw, ok := body["order-keyword"]; ok {
		s.searchOrder = append(s.searchOrder, kw)
		if st, fail := s.searchFail[kw]; fail {
			http.Error(w, "search failure", st)
			return
		}
		if raw, ok := s.rawSearch[kw]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(raw))
			return
		}
		recs := s.records[kw]
		if recs == nil {
			recs = []any{}
		}
		writeJSON(w, map[string]any{
			"status": "OK",
			"data":   map[string]any{"existing-orders": map[string]any{"Records": recs}},
		})
		return
	}

	if id, ok := body["order-id"]; ok {
		if st, fail := s.detailFail[id]; fail {
			http.Error(w, "detail failure", st)
			return
		}
		if raw, ok := s.rawDetail[id]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(raw))
			return
		}
		sec := s.details[id]
		if sec == nil {
			sec = map[string]any{}
		}
		writeJSON(w, map[string]any{
			"status": "OK",
			"data":   map[string]any{"existing-orders": sec},
		})
		return
	}

	http.Error(w, "missing parameters", http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
