// Package fakeark is an in-process stand-in for the target file-management
// API. It serves the envelope-shaped routes the harness talks to so probe,
// execution and migration code can be tested without a live deployment.
package fakeark

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// DefaultIdentityHeader is the trusted-proxy identity header.
const DefaultIdentityHeader = "CF-Access-Authenticated-User-Email"

// Options shapes the fake deployment.
type Options struct {
	// Bypass makes every request authenticated as AdminEmail, like a
	// development deployment with the proxy check disabled.
	Bypass bool

	AdminEmail     string
	IdentityHeader string

	// NoRealtime disables the websocket route.
	NoRealtime bool

	// PageLimit caps the page size of GET /api/files. Default 100.
	PageLimit int
}

// File is one stored file or folder.
type File struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsDirectory bool   `json:"is_directory"`
	ParentID    *int64 `json:"parent_id"`
	FileSize    int64  `json:"file_size"`
	MimeType    string `json:"mime_type"`
}

// Server is a running fake target.
type Server struct {
	*httptest.Server

	opts Options

	mu        sync.Mutex
	hits      map[string]int
	files     []File
	nextID    int64
	overrides map[string]override

	// content and bySum back downloads and upload dedup.
	content map[int64][]byte
	bySum   map[string]int64
}

type override struct {
	status int
	delay  time.Duration
}

// New starts a fake target and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts Options) *Server {
	t.Helper()

	if opts.IdentityHeader == "" {
		opts.IdentityHeader = DefaultIdentityHeader
	}

	if opts.AdminEmail == "" {
		opts.AdminEmail = "admin@example.com"
	}

	if opts.PageLimit <= 0 {
		opts.PageLimit = 100
	}

	s := &Server{
		opts:      opts,
		hits:      make(map[string]int),
		overrides: make(map[string]override),
		content:   make(map[int64][]byte),
		bySum:     make(map[string]int64),
		nextID:    1,
	}

	s.Server = httptest.NewServer(s.Router())
	t.Cleanup(s.Close)

	return s
}

// Router builds the chi route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countHits)
	r.Use(s.applyOverrides)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/auth/status", s.handleAuthStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.requireIdentity)

		r.Get("/api/files", s.handleListFiles)
		r.Post("/api/files/upload", s.handleUpload)
		r.Get("/api/files/{id}", s.handleFileInfo)
		r.Get("/api/files/{id}/download", s.handleDownload)
		r.Post("/api/folders", s.handleCreateFolder)
		r.Get("/api/admin/users", s.handleAdminUsers)
	})

	if !s.opts.NoRealtime {
		r.Get("/api/ws", s.handleWebsocket)
	}

	return r
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hits[path]
}

// TotalHits returns the number of requests served.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, v := range s.hits {
		n += v
	}

	return n
}

// SetStatus forces every request to path to answer with status.
func (s *Server) SetStatus(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.overrides[path]
	o.status = status
	s.overrides[path] = o
}

// SetDelay delays every request to path by d before handling it.
func (s *Server) SetDelay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.overrides[path]
	o.delay = d
	s.overrides[path] = o
}

// Files returns a copy of the stored files and folders.
func (s *Server) Files() []File {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]File(nil), s.files...)
}

// AddFolder stores a folder directly and returns its ID.
func (s *Server) AddFolder(name string, parentID *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(File{Name: name, IsDirectory: true, ParentID: parentID, MimeType: "folder"})
}

func (s *Server) addLocked(f File) int64 {
	f.ID = s.nextID
	s.nextID++
	s.files = append(s.files, f)

	return f.ID
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) applyOverrides(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		o, ok := s.overrides[r.URL.Path]
		s.mu.Unlock()

		if ok && o.delay > 0 {
			select {
			case <-time.After(o.delay):
			case <-r.Context().Done():
				return
			}
		}

		if ok && o.status != 0 {
			writeError(w, o.status, "FORCED", http.StatusText(o.status))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) identity(r *http.Request) string {
	if s.opts.Bypass {
		return s.opts.AdminEmail
	}

	return r.Header.Get(s.opts.IdentityHeader)
}

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.identity(r) == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	id := s.identity(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"authenticated": true, "email": id}, nil)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	var parent *int64

	if raw := r.URL.Query().Get("parent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "bad parent_id")
			return
		}

		parent = &id
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > s.opts.PageLimit {
		limit = s.opts.PageLimit
	}

	s.mu.Lock()

	matched := []File{}

	for _, f := range s.files {
		if sameParent(f.ParentID, parent) {
			matched = append(matched, f)
		}
	}
	s.mu.Unlock()

	total := len(matched)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}

	writeSuccess(w, http.StatusOK, map[string]any{"files": matched[start:end]}, map[string]any{
		"pagination": map[string]any{"page": page, "limit": limit, "total": total, "totalPages": totalPages},
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "NO_FILE", "file field missing")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "READ_FAILED", err.Error())
		return
	}

	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])

	s.mu.Lock()

	if existing, ok := s.bySum[key]; ok {
		s.mu.Unlock()

		writeSuccess(w, http.StatusOK, map[string]any{
			"id":           existing,
			"name":         header.Filename,
			"file_size":    len(data),
			"deduplicated": true,
		}, nil)

		return
	}

	id := s.addLocked(File{Name: header.Filename, FileSize: int64(len(data)), MimeType: header.Header.Get("Content-Type")})
	s.content[id] = data
	s.bySum[key] = id
	s.mu.Unlock()

	writeSuccess(w, http.StatusCreated, map[string]any{
		"id":            id,
		"name":          header.Filename,
		"file_size":     len(data),
		"relative_path": r.FormValue("relative_path"),
	}, nil)
}

// lookupFile resolves the {id} URL parameter to a stored file.
func (s *Server) lookupFile(w http.ResponseWriter, r *http.Request) (File, []byte, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "file id must be numeric")
		return File{}, nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.files {
		if f.ID == id {
			return f, s.content[id], true
		}
	}

	writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "file not found")

	return File{}, nil, false
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	f, _, ok := s.lookupFile(w, r)
	if !ok {
		return
	}

	writeSuccess(w, http.StatusOK, f, nil)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	f, data, ok := s.lookupFile(w, r)
	if !ok {
		return
	}

	if f.IsDirectory {
		writeError(w, http.StatusBadRequest, "IS_DIRECTORY", "folders cannot be downloaded")
		return
	}

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.files {
		if f.IsDirectory && f.Name == req.Name && sameParent(f.ParentID, req.ParentID) {
			writeError(w, http.StatusConflict, "FOLDER_EXISTS", "folder already exists")
			return
		}
	}

	id := s.addLocked(File{Name: req.Name, IsDirectory: true, ParentID: req.ParentID, MimeType: "folder"})

	writeSuccess(w, http.StatusCreated, map[string]any{
		"id": id, "name": req.Name, "is_directory": true, "parent_id": req.ParentID,
	}, nil)
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if s.identity(r) != s.opts.AdminEmail {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "admin only")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"users": []map[string]any{{"email": s.opts.AdminEmail, "role": "admin"}},
	}, nil)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	// Hold the connection until the client goes away.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			_ = conn.CloseNow()
			return
		}
	}
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return *a == *b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, data, meta any) {
	body := map[string]any{"success": true, "data": data}
	if meta != nil {
		body["meta"] = meta
	}

	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   map[string]any{"code": code, "message": message},
	})
}
