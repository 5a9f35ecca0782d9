// Package mock provides an in-memory similarity webservice. It serves the same routes as
// the real backend and answers with the message_type/message envelope, so clients can be
// exercised without a running server.
package mock

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"io"
	"math/bits"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/twmb/murmur3"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	chhttp "github.com/ssciwr/similarity-client-go/pkg/commons/http"
	"github.com/ssciwr/similarity-client-go/pkg/logger"
)

const (
	DefaultPrefix = "/api"
	APIKeyHeader  = "API-Key"
)

type collection struct {
	ID            int
	Name          string
	HeidiconTag   string
	LastModified  time.Time
	LastFinetuned *time.Time
	Images        []image
}

type image struct {
	ImageURL  string
	ObjectURL string
}

type apiKey struct {
	name string
	salt []byte
	hash []byte
}

// Backend is an http.Handler holding collections and API keys in memory.
type Backend struct {
	mu          sync.RWMutex
	collections map[int]*collection
	nextID      int
	keys        []apiKey
	prefix      string
	logger      logger.Logger
	now         func() time.Time
	mux         *http.ServeMux
}

type Option func(*Backend) error

// WithAPIKey registers a key accepted on POST routes. Keys are stored as argon2id hashes.
func WithAPIKey(name, key string) Option {
	return func(b *Backend) error {
		if key == "" {
			return errors.New("api key cannot be empty")
		}
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return errors.Wrap(err, "error generating salt")
		}
		b.keys = append(b.keys, apiKey{name: name, salt: salt, hash: hashKey(key, salt)})
		return nil
	}
}

// WithCollection seeds a collection. Ids are assigned in order starting at 1.
func WithCollection(name string, heidiconTag string) Option {
	return func(b *Backend) error {
		b.create(name, heidiconTag)
		return nil
	}
}

// Fixtures seed a backend from YAML:
//
//	api_keys:
//	  - name: ci
//	    key: secret
//	collections:
//	  - name: paintings
//	    heidicon_tag: paintings-2024
//	    images:
//	      - image_url: https://example.org/a.png
//	        object_url: https://example.org/objects/a
type Fixtures struct {
	APIKeys []struct {
		Name string `yaml:"name"`
		Key  string `yaml:"key"`
	} `yaml:"api_keys"`
	Collections []struct {
		Name        string `yaml:"name"`
		HeidiconTag string `yaml:"heidicon_tag"`
		Images      []struct {
			ImageURL  string `yaml:"image_url"`
			ObjectURL string `yaml:"object_url"`
		} `yaml:"images"`
	} `yaml:"collections"`
}

// WithFixtures reads Fixtures from r.
func WithFixtures(r io.Reader) Option {
	return func(b *Backend) error {
		var f Fixtures
		if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return errors.Wrap(err, "error decoding fixtures")
		}
		for _, k := range f.APIKeys {
			if err := WithAPIKey(k.Name, k.Key)(b); err != nil {
				return errors.Wrapf(err, "invalid fixture key %q", k.Name)
			}
		}
		for _, fc := range f.Collections {
			if strings.TrimSpace(fc.Name) == "" {
				return errors.New("fixture collection without name")
			}
			c := b.create(fc.Name, fc.HeidiconTag)
			for _, img := range fc.Images {
				c.Images = append(c.Images, image{ImageURL: img.ImageURL, ObjectURL: img.ObjectURL})
			}
		}
		return nil
	}
}

func WithPrefix(prefix string) Option {
	return func(b *Backend) error {
		b.prefix = strings.TrimRight(prefix, "/")
		return nil
	}
}

func WithLogger(l logger.Logger) Option {
	return func(b *Backend) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		b.logger = l
		return nil
	}
}

// WithClock replaces time.Now for modification and fine-tuning timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		b.now = now
		return nil
	}
}

func NewBackend(opts ...Option) (*Backend, error) {
	b := &Backend{
		collections: map[int]*collection{},
		nextID:      1,
		prefix:      DefaultPrefix,
		logger:      logger.NewNoopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.routes()
	return b, nil
}

func hashKey(key string, salt []byte) []byte {
	return argon2.IDKey([]byte(key), salt, 1, 8*1024, 1, 32)
}

func (b *Backend) routes() {
	mux := http.NewServeMux()
	p := b.prefix
	mux.HandleFunc("GET "+p+"/collection/list", b.handleList)
	mux.HandleFunc("GET "+p+"/collection/{id}/info", b.handleInfo)
	mux.HandleFunc("POST "+p+"/collection/create", b.authorized(b.handleCreate))
	mux.HandleFunc("POST "+p+"/collection/{id}/updatename", b.authorized(b.handleRename))
	mux.HandleFunc("POST "+p+"/collection/{id}/delete", b.authorized(b.handleDelete))
	mux.HandleFunc("POST "+p+"/collection/{id}/updatecontent", b.authorized(b.handleUpdateContent))
	mux.HandleFunc("POST "+p+"/collection/{id}/finetune", b.authorized(b.handleFinetune))
	mux.HandleFunc("POST "+p+"/collection/{id}/search", b.authorized(b.handleSearch))
	mux.HandleFunc("POST "+p+"/verify", b.authorized(b.handleVerify))
	b.mux = mux
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.logger.Debug("mock request", logger.String("method", r.Method), logger.String("path", r.URL.Path))
	b.mux.ServeHTTP(w, r)
}

func (b *Backend) validKey(key string) bool {
	if key == "" {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, k := range b.keys {
		if subtle.ConstantTimeCompare(hashKey(key, k.salt), k.hash) == 1 {
			return true
		}
	}
	return false
}

func (b *Backend) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !b.validKey(r.Header.Get(APIKeyHeader)) {
			writeMessage(w, http.StatusForbidden, "error", "Invalid API key")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, messageType, message string) {
	writeJSON(w, status, map[string]string{"message_type": messageType, "message": message})
}

func (b *Backend) lookup(w http.ResponseWriter, r *http.Request) (*collection, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "error", "Invalid collection id")
		return nil, false
	}
	c, ok := b.collections[id]
	if !ok {
		writeMessage(w, http.StatusNotFound, "error", "Collection "+strconv.Itoa(id)+" does not exist")
		return nil, false
	}
	return c, true
}

func (b *Backend) create(name, tag string) *collection {
	c := &collection{ID: b.nextID, Name: name, HeidiconTag: tag, LastModified: b.now().UTC()}
	b.collections[c.ID] = c
	b.nextID++
	return c
}

func (b *Backend) handleList(w http.ResponseWriter, _ *http.Request) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.collections))
	for id := range b.collections {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Ints(ids)
	writeJSON(w, http.StatusOK, ids)
}

func (b *Backend) handleInfo(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             c.ID,
		"name":           c.Name,
		"heidicon_tag":   c.HeidiconTag,
		"last_modified":  c.LastModified.Format(time.RFC3339Nano),
		"last_finetuned": formatOptional(c.LastFinetuned),
		"images":         len(c.Images),
	})
}

func formatOptional(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func decodeBody(r *http.Request, out interface{}) error {
	raw, err := chhttp.ReadLimitedBody(r.Body)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		HeidiconTag string `json:"heidicon_tag"`
	}
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeMessage(w, http.StatusBadRequest, "error", "A collection name is required")
		return
	}
	b.mu.Lock()
	c := b.create(req.Name, req.HeidiconTag)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           c.ID,
		"message_type": "push",
		"message":      "Collection " + req.Name + " created",
	})
}

func (b *Backend) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeMessage(w, http.StatusBadRequest, "error", "A collection name is required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.lookup(w, r)
	if !ok {
		return
	}
	c.Name = req.Name
	c.LastModified = b.now().UTC()
	writeMessage(w, http.StatusOK, "push", "Collection renamed to "+req.Name)
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.lookup(w, r)
	if !ok {
		return
	}
	delete(b.collections, c.ID)
	writeMessage(w, http.StatusOK, "push", "Collection "+c.Name+" deleted")
}

// handleUpdateContent replaces the images from a CSV upload, or refreshes them from the
// collection's HeidICON tag when the body is JSON.
func (b *Backend) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	csvUpload := strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv")
	var images []image
	if csvUpload {
		var err error
		images, err = parseImages(r.Body)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "error", "Invalid CSV file: "+err.Error())
			return
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.lookup(w, r)
	if !ok {
		return
	}
	if !csvUpload {
		if c.HeidiconTag == "" {
			writeMessage(w, http.StatusBadRequest, "error", "Collection has no HeidICON tag")
			return
		}
		c.LastModified = b.now().UTC()
		writeMessage(w, http.StatusOK, "push", "Content refreshed from HeidICON tag "+c.HeidiconTag)
		return
	}
	c.Images = images
	c.LastModified = b.now().UTC()
	writeMessage(w, http.StatusOK, "push", strconv.Itoa(len(images))+" images uploaded")
}

// parseImages reads rows of "image_url[,object_url]".
func parseImages(r io.Reader) ([]image, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	images := make([]image, 0, len(records))
	for i, rec := range records {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "image_url") {
			continue
		}
		img := image{ImageURL: strings.TrimSpace(rec[0])}
		if len(rec) > 1 {
			img.ObjectURL = strings.TrimSpace(rec[1])
		}
		images = append(images, img)
	}
	return images, nil
}

func (b *Backend) handleFinetune(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.lookup(w, r)
	if !ok {
		return
	}
	now := b.now().UTC()
	c.LastFinetuned = &now
	writeMessage(w, http.StatusOK, "push", "Finetuning of collection "+c.Name+" finished")
}

type searchResult struct {
	Score     float64 `json:"score"`
	ImageURL  string  `json:"image_url"`
	ObjectURL string  `json:"object_url,omitempty"`
}

func fingerprint(data []byte) uint64 {
	return murmur3.Sum64(data)
}

// similarity scores the query against an image URL. Equal inputs score 1.
func similarity(query uint64, url string) float64 {
	return 1 - float64(bits.OnesCount64(query^fingerprint([]byte(url))))/64
}

func (b *Backend) handleSearch(w http.ResponseWriter, r *http.Request) {
	raw, err := chhttp.ReadLimitedBody(r.Body)
	if err != nil {
		writeMessage(w, http.StatusRequestEntityTooLarge, "error", err.Error())
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(decoded) == 0 {
		writeMessage(w, http.StatusBadRequest, "error", "Image must be base64 encoded")
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil || limit <= 0 {
			writeMessage(w, http.StatusBadRequest, "error", "Invalid limit")
			return
		}
	}

	b.mu.RLock()
	c, ok := b.lookup(w, r)
	if !ok {
		b.mu.RUnlock()
		return
	}
	query := fingerprint(decoded)
	results := make([]searchResult, 0, len(c.Images))
	for _, img := range c.Images {
		results = append(results, searchResult{
			Score:     similarity(query, img.ImageURL),
			ImageURL:  img.ImageURL,
			ObjectURL: img.ObjectURL,
		})
	}
	b.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, results)
}

func (b *Backend) handleVerify(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "push", "API key is valid")
}

// Server is a Backend listening on a real TCP port.
type Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

// Start serves the backend on addr ("127.0.0.1:0" picks a free port). URL includes the prefix.
func (b *Backend) Start(addr string) (*Server, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "error listening on %s", addr)
	}
	s := &Server{
		URL: "http://" + ln.Addr().String() + b.prefix,
		srv: &http.Server{Handler: b, ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("mock server stopped", logger.ErrorField("error", err))
		}
	}()
	return s, nil
}

func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
