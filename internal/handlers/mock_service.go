package handlers

import (
	"context"
	"net/http"

	"smokehouse/internal/flash"
	"smokehouse/internal/models"
	"smokehouse/internal/service"
	"smokehouse/internal/storage"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	genTokenToken string
	genTokenErr   error
	parseUser     string
	parseErr      error

	lastGenUsername string
	lastGenPassword string
	lastParseToken  string
}

func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (string, error) {
	m.lastParseToken = token
	return m.parseUser, m.parseErr
}

type mockProcess struct {
	startErr  error
	stopErr   error
	resumeErr error
	manualErr error

	lastMode    models.RunMode
	lastManual  models.ManualSettings
	startCalled int
	stopCalled  int
	resumeCalls int
	manualCalls int
}

func (m *mockProcess) Start(_ context.Context, mode models.RunMode) error {
	m.startCalled++
	m.lastMode = mode
	return m.startErr
}
func (m *mockProcess) Stop(context.Context) error {
	m.stopCalled++
	return m.stopErr
}
func (m *mockProcess) Resume(context.Context) error {
	m.resumeCalls++
	return m.resumeErr
}
func (m *mockProcess) SetManual(_ context.Context, s models.ManualSettings) error {
	m.manualCalls++
	m.lastManual = s
	return m.manualErr
}

type mockMonitoring struct {
	state   models.ProcessSnapshot
	err     error
	diag    service.Diagnostics
	diagErr error
}

func (m *mockMonitoring) GetState(context.Context) (models.ProcessSnapshot, error) {
	return m.state, m.err
}
func (m *mockMonitoring) Diagnostics(context.Context) (service.Diagnostics, error) {
	return m.diag, m.diagErr
}

type mockEventLog struct {
	resp     []models.ProcessEvent
	err      error
	tail     []byte
	tailErr  error
	lastN    int64
	lastFilt service.LogFilter
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.ProcessEvent, error) {
	m.lastFilt = f
	return m.resp, m.err
}
func (m *mockEventLog) Tail(_ context.Context, n int64) ([]byte, error) {
	m.lastN = n
	return m.tail, m.tailErr
}

type mockProfiles struct {
	names     []string
	listErr   error
	steps     []storage.StepData
	getErr    error
	saveErr   error
	selected  models.Profile
	selectErr error

	lastSource string
	lastName   string
	lastSaved  []storage.StepData
	lastPath   string
}

func (m *mockProfiles) List(_ context.Context, source string) ([]string, error) {
	m.lastSource = source
	return m.names, m.listErr
}
func (m *mockProfiles) Get(_ context.Context, name string) ([]storage.StepData, error) {
	m.lastName = name
	return m.steps, m.getErr
}
func (m *mockProfiles) Save(_ context.Context, name string, steps []storage.StepData) error {
	m.lastName = name
	m.lastSaved = steps
	return m.saveErr
}
func (m *mockProfiles) Select(_ context.Context, path string) (models.Profile, error) {
	m.lastPath = path
	return m.selected, m.selectErr
}

type mockMaintenance struct {
	backups    []string
	written    string
	record     models.BackupRecord
	assignErr  error
	detectErr  error
	info       flash.Info
	remountErr error
	err        error

	lastRestore string
	lastAssign  models.SensorAssignment
	lastFormat  bool
	remounts    int
}

func (m *mockMaintenance) ListBackups(context.Context) ([]string, error) { return m.backups, m.err }
func (m *mockMaintenance) WriteBackup(context.Context) (string, error)   { return m.written, m.err }
func (m *mockMaintenance) RestoreBackup(_ context.Context, name string) (models.BackupRecord, error) {
	m.lastRestore = name
	return m.record, m.err
}
func (m *mockMaintenance) AssignSensors(_ context.Context, a models.SensorAssignment) error {
	m.lastAssign = a
	return m.assignErr
}
func (m *mockMaintenance) AutoDetectSensors(context.Context) error { return m.detectErr }
func (m *mockMaintenance) Remount(_ context.Context, format bool) (flash.Info, error) {
	m.remounts++
	m.lastFormat = format
	return m.info, m.remountErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
