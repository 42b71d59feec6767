package sourcesmodule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/mediasource"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.MediaSource{}, &database.Credential{}))
	database.SetDB(db)

	m := &Module{}
	router := gin.New()
	m.RegisterRoutes(router)
	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSourceCRUD(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/sources", map[string]interface{}{
		"name":       "nas music",
		"provider":   "smb",
		"host":       "nas.local",
		"share_name": "music",
		"root_path":  "/albums",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created database.MediaSource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)
	assert.True(t, created.Enabled)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/sources/%d", created.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nas music")

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/sources/%d", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/sources/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSourceValidation(t *testing.T) {
	router, _ := setupRouter(t)

	// Missing required fields.
	rec := doJSON(t, router, http.MethodPost, "/api/sources", map[string]interface{}{
		"name": "incomplete",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// SMB without connection details.
	rec = doJSON(t, router, http.MethodPost, "/api/sources", map[string]interface{}{
		"name":      "no host",
		"provider":  "smb",
		"root_path": "/",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sources", map[string]interface{}{
		"name":      "bad provider",
		"provider":  "ftp",
		"root_path": "/",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCredentialPasswordNeverSerialized(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/credentials", map[string]interface{}{
		"name":     "nas account",
		"username": "media",
		"password": "sekrit",
		"domain":   "WORKGROUP",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sekrit")

	rec = doJSON(t, router, http.MethodGet, "/api/credentials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nas account")
	assert.NotContains(t, rec.Body.String(), "sekrit")
}

func TestBrowseLocalSource(t *testing.T) {
	router, db := setupRouter(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "albums"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "track.mp3"), []byte("bytes"), 0o644))

	source := database.MediaSource{Name: "local", Provider: "local", RootPath: root, Enabled: true}
	require.NoError(t, db.Create(&source).Error)

	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/sources/%d/browse", source.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Path    string              `json:"path"`
		Entries []mediasource.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/", resp.Path)
	require.Len(t, resp.Entries, 2)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/sources/%d/browse?path=/missing", source.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/sources/999/browse", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
