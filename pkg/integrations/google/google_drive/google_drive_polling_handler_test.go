package googledrive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

type driveServer struct {
	mtx     sync.Mutex
	queries []string
	auth    []string
	status  int
	body    string
}

func (s *driveServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !strings.HasSuffix(r.URL.Path, "/files") {
		http.NotFound(w, r)
		return
	}

	s.queries = append(s.queries, r.URL.Query().Get("q"))
	s.auth = append(s.auth, r.Header.Get("Authorization"))

	w.Header().Set("Content-Type", "application/json")
	if s.status != 0 {
		w.WriteHeader(s.status)
	}
	_, _ = w.Write([]byte(s.body))
}

func newPollParams(state domain.PollState, now time.Time) domain.PollParams {
	return domain.PollParams{
		WorkflowID: "wf-drive",
		UserID:     "user-1",
		TriggerID:  "trigger",
		Config: domain.PollTriggerConfig{
			ResourceType: domain.IntegrationType_Drive,
			EventType:    EventType_FileCreated,
			Settings:     map[string]any{"folder_id": "folder-1"},
		},
		Credential: domain.Credential{
			ID:              "cred-drive",
			UserID:          "user-1",
			IntegrationType: domain.IntegrationType_Drive,
			Payload:         map[string]any{"access_token": "ya29.token"},
		},
		State:     state,
		Now:       now,
		MaxEvents: 10,
	}
}

func TestGoogleDrivePollingHandler_Poll(t *testing.T) {
	server := &driveServer{body: `{"files":[
		{"id":"f1","name":"a.txt","mimeType":"text/plain","createdTime":"2026-03-01T10:00:00Z","modifiedTime":"2026-03-01T10:00:00Z"},
		{"id":"f2","name":"b.txt","mimeType":"text/plain","createdTime":"2026-03-01T10:05:00Z","modifiedTime":"2026-03-01T10:05:00Z","parents":["folder-1"]}
	]}`}

	srv := httptest.NewServer(server)
	defer srv.Close()

	handler := NewGoogleDrivePollingHandler(GoogleDrivePollingHandlerDeps{Endpoint: srv.URL + "/"})
	now := time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC)

	baseline, err := handler.Poll(context.Background(), newPollParams(domain.PollState{}, now))
	require.NoError(t, err)

	assert.Empty(t, baseline.Events)
	assert.Equal(t, now, baseline.NextState.LastSeenAt)
	assert.ElementsMatch(t, []string{"f1", "f2"}, baseline.NextState.RecentIDs)

	watermark := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)
	result, err := handler.Poll(context.Background(), newPollParams(domain.PollState{LastSeenAt: watermark}, now))
	require.NoError(t, err)

	require.Len(t, result.Events, 1)
	assert.Equal(t, "f2", result.Events[0].ID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), result.NextState.LastSeenAt)

	file := result.Events[0].Data["file"].(map[string]any)
	assert.Equal(t, "b.txt", file["name"])
	assert.Equal(t, []string{"folder-1"}, file["parents"])

	require.Len(t, server.queries, 2)
	assert.Equal(t, "trashed = false and 'folder-1' in parents", server.queries[0])
	assert.Equal(t, "trashed = false and 'folder-1' in parents and createdTime >= '2026-03-01T10:02:00Z'", server.queries[1])
	assert.Equal(t, "Bearer ya29.token", server.auth[0])
}

func TestGoogleDrivePollingHandler_Errors(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC)

	t.Run("api failure keeps status", func(t *testing.T) {
		srv := httptest.NewServer(&driveServer{status: http.StatusUnauthorized, body: `{"error":{"code":401,"message":"Invalid Credentials"}}`})
		defer srv.Close()

		handler := NewGoogleDrivePollingHandler(GoogleDrivePollingHandlerDeps{Endpoint: srv.URL + "/"})

		_, err := handler.Poll(context.Background(), newPollParams(domain.PollState{LastSeenAt: now}, now))

		var adapterErr *domain.AdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, http.StatusUnauthorized, adapterErr.StatusCode)
	})

	t.Run("unsupported event type", func(t *testing.T) {
		params := newPollParams(domain.PollState{}, now)
		params.Config.EventType = "file_deleted"

		_, err := NewGoogleDrivePollingHandler(GoogleDrivePollingHandlerDeps{}).Poll(context.Background(), params)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("credential without token", func(t *testing.T) {
		params := newPollParams(domain.PollState{}, now)
		params.Credential.Payload = map[string]any{}

		_, err := NewGoogleDrivePollingHandler(GoogleDrivePollingHandlerDeps{}).Poll(context.Background(), params)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestBuildQuery(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name      string
		settings  PollSettings
		eventType string
		since     time.Time
		want      string
	}{
		{
			name:      "everything",
			eventType: EventType_FileCreated,
			want:      "trashed = false",
		},
		{
			name:      "updated since watermark in utc",
			eventType: EventType_FileUpdated,
			since:     since,
			want:      "trashed = false and modifiedTime >= '2026-03-01T11:00:00Z'",
		},
		{
			name:      "folder id is escaped",
			settings:  PollSettings{FolderID: "it's"},
			eventType: EventType_FileCreated,
			want:      `trashed = false and 'it\'s' in parents`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildQuery(tt.settings, tt.eventType, tt.since))
		})
	}
}

func TestToPollEvent_UpdatedIDIncludesModification(t *testing.T) {
	event, err := toPollEvent(&drive.File{
		Id:           "f9",
		CreatedTime:  "2026-03-01T08:00:00Z",
		ModifiedTime: "2026-03-02T08:00:00Z",
	}, EventType_FileUpdated)
	require.NoError(t, err)

	assert.Equal(t, "f9@2026-03-02T08:00:00Z", event.ID)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), event.OccurredAt)
}

// filteringDriveServer applies the createdTime lower bound, orderBy and pageSize
// of a files.list call to a fixed set of files.
type filteringDriveServer struct {
	files []*drive.File
}

func (s *filteringDriveServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	since := ""
	if _, rest, ok := strings.Cut(query.Get("q"), "createdTime >= '"); ok {
		since, _, _ = strings.Cut(rest, "'")
	}

	matching := []*drive.File{}
	for _, file := range s.files {
		if since == "" || file.CreatedTime >= since {
			matching = append(matching, file)
		}
	}

	descending := strings.HasSuffix(query.Get("orderBy"), " desc")
	sort.SliceStable(matching, func(i, j int) bool {
		if descending {
			return matching[i].CreatedTime > matching[j].CreatedTime
		}
		return matching[i].CreatedTime < matching[j].CreatedTime
	})

	if pageSize, err := strconv.Atoi(query.Get("pageSize")); err == nil && pageSize < len(matching) {
		matching = matching[:pageSize]
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&drive.FileList{Files: matching})
}

func TestGoogleDrivePollingHandler_BurstLargerThanPage(t *testing.T) {
	watermark := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	server := &filteringDriveServer{}
	for i := 0; i < 60; i++ {
		created := watermark.Add(time.Duration(i+1) * time.Second).Format(time.RFC3339)
		server.files = append(server.files, &drive.File{
			Id:           fmt.Sprintf("f%02d", i),
			Name:         fmt.Sprintf("file-%02d", i),
			CreatedTime:  created,
			ModifiedTime: created,
		})
	}

	srv := httptest.NewServer(server)
	defer srv.Close()

	handler := NewGoogleDrivePollingHandler(GoogleDrivePollingHandlerDeps{Endpoint: srv.URL + "/"})
	now := watermark.Add(time.Hour)

	state := domain.PollState{LastSeenAt: watermark}
	emitted := []string{}

	for poll := 0; poll < 30; poll++ {
		params := newPollParams(state, now)
		params.Config.Settings = nil
		params.MaxEvents = 5

		result, err := handler.Poll(context.Background(), params)
		require.NoError(t, err)

		for _, event := range result.Events {
			emitted = append(emitted, event.ID)
		}

		state = result.NextState
	}

	require.Len(t, emitted, 60)
	assert.Equal(t, "f00", emitted[0])
	assert.Equal(t, "f59", emitted[59])
}
