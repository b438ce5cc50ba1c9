package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/logging"
	sc "github.com/lockboxd/lockbox/internal/server/config"
	"github.com/lockboxd/lockbox/internal/server/models"
	"github.com/lockboxd/lockbox/internal/server/repositories/filekeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/files"
	"github.com/lockboxd/lockbox/internal/server/repositories/folderfilekeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/folderkeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/folders"
	"github.com/lockboxd/lockbox/internal/server/repositories/quotas"
	"github.com/lockboxd/lockbox/internal/server/repositories/users"
)

// The services only touch the *sql.DB for transaction demarcation; all row
// access goes through the (faked) repositories. A no-op driver keeps the
// tests free of per-transaction mock bookkeeping.

type nopDriver struct{}

func (nopDriver) Open(string) (driver.Conn, error) { return nopConn{}, nil }

type nopConn struct{}

func (nopConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (nopConn) Close() error                        { return nil }
func (nopConn) Begin() (driver.Tx, error)           { return nopTx{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

var registerNopDriver sync.Once

func newNopDB(t *testing.T) *sql.DB {
	t.Helper()
	registerNopDriver.Do(func() { sql.Register("lockbox-nop", nopDriver{}) })
	db, err := sql.Open("lockbox-nop", "")
	if err != nil {
		t.Fatalf("open nop db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// --- in-memory repositories ---

type memUsers struct {
	byID map[string]*models.User
}

func (m *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	for _, existing := range m.byID {
		if existing.Username == u.Username || existing.Email == u.Email {
			return nil, common.ErrorAlreadyRegistered
		}
	}
	u.CreatedAt = time.Now()
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (m *memUsers) Search(ctx context.Context, query string, limit int) ([]*models.User, error) {
	var result []*models.User
	for _, u := range m.byID {
		if strings.HasPrefix(u.Username, query) || strings.HasPrefix(u.Email, query) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type memFiles struct {
	byID map[string]*models.File

	// wired by newTestEnv so ListAccessible can emulate the SQL join
	fileKeys       *memFileKeys
	folderKeys     *memFolderKeys
	folderFileKeys *memFolderFileKeys
}

func (m *memFiles) Create(ctx context.Context, f *models.File) error {
	f.CreatedAt = time.Now()
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *memFiles) GetByID(ctx context.Context, id string) (*models.File, error) {
	f, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memFiles) MarkUploaded(ctx context.Context, id string, nonce []byte) error {
	f, ok := m.byID[id]
	if !ok || f.UploadStatus != models.UploadPending {
		return common.ErrorInvalidState
	}
	f.UploadStatus = models.UploadCompleted
	f.Nonce = nonce
	return nil
}

func (m *memFiles) SetFolder(ctx context.Context, id string, folderID *string) error {
	f, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	f.FolderID = folderID
	return nil
}

func (m *memFiles) ListByFolder(ctx context.Context, folderID string) ([]*models.File, error) {
	var result []*models.File
	for _, f := range m.byID {
		if f.FolderID != nil && *f.FolderID == folderID {
			cp := *f
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *memFiles) Trash(ctx context.Context, id, byUser string, at time.Time, purgeAt *time.Time) error {
	f, ok := m.byID[id]
	if !ok || f.State != models.StateActive {
		return common.ErrorInvalidState
	}
	f.State = models.StateTrashed
	f.DeletedAt = &at
	f.DeletedBy = &byUser
	f.ScheduledPurgeAt = purgeAt
	return nil
}

func (m *memFiles) TrashByFolder(ctx context.Context, folderID, byUser string, at time.Time, purgeAt *time.Time) ([]string, error) {
	var ids []string
	for _, f := range m.byID {
		if f.FolderID != nil && *f.FolderID == folderID && f.State == models.StateActive {
			f.State = models.StateTrashed
			f.DeletedAt = &at
			f.DeletedBy = &byUser
			f.ScheduledPurgeAt = purgeAt
			ids = append(ids, f.ID)
		}
	}
	return ids, nil
}

func (m *memFiles) Restore(ctx context.Context, id string) error {
	f, ok := m.byID[id]
	if !ok || f.State != models.StateTrashed {
		return common.ErrorInvalidState
	}
	f.State = models.StateActive
	f.DeletedAt = nil
	f.DeletedBy = nil
	f.ScheduledPurgeAt = nil
	return nil
}

func (m *memFiles) RestoreByFolder(ctx context.Context, folderID string) ([]string, error) {
	var ids []string
	for _, f := range m.byID {
		if f.FolderID != nil && *f.FolderID == folderID && f.State == models.StateTrashed {
			f.State = models.StateActive
			f.DeletedAt = nil
			f.DeletedBy = nil
			f.ScheduledPurgeAt = nil
			ids = append(ids, f.ID)
		}
	}
	return ids, nil
}

func (m *memFiles) Delete(ctx context.Context, id string) (int64, error) {
	f, ok := m.byID[id]
	if !ok || f.State != models.StateTrashed {
		return 0, nil
	}
	delete(m.byID, id)
	return 1, nil
}

func (m *memFiles) SumActiveSize(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	for _, f := range m.byID {
		if f.OwnerID == ownerID && f.State == models.StateActive {
			total += f.Size
		}
	}
	return total, nil
}

func (m *memFiles) ListExpired(ctx context.Context, now time.Time) ([]*models.File, error) {
	var result []*models.File
	for _, f := range m.byID {
		if f.State == models.StateTrashed && f.ScheduledPurgeAt != nil && !f.ScheduledPurgeAt.After(now) {
			cp := *f
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *memFiles) ListAccessible(ctx context.Context, userID string) ([]*models.File, error) {
	var result []*models.File
	for _, f := range m.byID {
		if _, ok := m.fileKeys.rows[f.ID][userID]; ok {
			cp := *f
			result = append(result, &cp)
			continue
		}
		if f.FolderID != nil {
			_, member := m.folderKeys.rows[*f.FolderID][userID]
			_, wrapped := m.folderFileKeys.rows[f.ID][*f.FolderID]
			if member && wrapped {
				cp := *f
				result = append(result, &cp)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type memFolders struct {
	byID map[string]*models.Folder
}

func (m *memFolders) Create(ctx context.Context, f *models.Folder) error {
	f.CreatedAt = time.Now()
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *memFolders) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	f, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memFolders) SetParent(ctx context.Context, id string, parentID *string) error {
	f, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	f.ParentID = parentID
	return nil
}

func (m *memFolders) DetachChildren(ctx context.Context, parentID string) error {
	for _, f := range m.byID {
		if f.ParentID != nil && *f.ParentID == parentID {
			f.ParentID = nil
		}
	}
	return nil
}

func (m *memFolders) IsAncestor(ctx context.Context, folderID, candidateID string) (bool, error) {
	current := folderID
	for {
		if current == candidateID {
			return true, nil
		}
		f, ok := m.byID[current]
		if !ok || f.ParentID == nil {
			return false, nil
		}
		current = *f.ParentID
	}
}

func (m *memFolders) Trash(ctx context.Context, id, byUser string, at time.Time, purgeAt *time.Time) error {
	f, ok := m.byID[id]
	if !ok || f.State != models.StateActive {
		return common.ErrorInvalidState
	}
	f.State = models.StateTrashed
	f.DeletedAt = &at
	f.DeletedBy = &byUser
	f.ScheduledPurgeAt = purgeAt
	return nil
}

func (m *memFolders) Restore(ctx context.Context, id string) error {
	f, ok := m.byID[id]
	if !ok || f.State != models.StateTrashed {
		return common.ErrorInvalidState
	}
	f.State = models.StateActive
	f.DeletedAt = nil
	f.DeletedBy = nil
	f.ScheduledPurgeAt = nil
	return nil
}

func (m *memFolders) Delete(ctx context.Context, id string) (int64, error) {
	f, ok := m.byID[id]
	if !ok || f.State != models.StateTrashed {
		return 0, nil
	}
	// the schema's parent_id foreign key forbids deleting a folder that
	// still has children
	for _, child := range m.byID {
		if child.ParentID != nil && *child.ParentID == id {
			return 0, fmt.Errorf("db error: folders_parent_id_fkey violation on %s", id)
		}
	}
	delete(m.byID, id)
	return 1, nil
}

func (m *memFolders) ListExpired(ctx context.Context, now time.Time) ([]*models.Folder, error) {
	var result []*models.Folder
	for _, f := range m.byID {
		if f.State == models.StateTrashed && f.ScheduledPurgeAt != nil && !f.ScheduledPurgeAt.After(now) {
			cp := *f
			result = append(result, &cp)
		}
	}
	return result, nil
}

type memFileKeys struct {
	rows map[string]map[string]*models.FileKey // fileID -> recipientID
}

func (m *memFileKeys) Create(ctx context.Context, k *models.FileKey) error {
	if m.rows[k.FileID] == nil {
		m.rows[k.FileID] = map[string]*models.FileKey{}
	}
	if _, exists := m.rows[k.FileID][k.RecipientID]; exists {
		return common.ErrorConflict
	}
	k.CreatedAt = time.Now()
	m.rows[k.FileID][k.RecipientID] = k
	return nil
}

func (m *memFileKeys) Get(ctx context.Context, fileID, recipientID string) (*models.FileKey, error) {
	k, ok := m.rows[fileID][recipientID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return k, nil
}

func (m *memFileKeys) Delete(ctx context.Context, fileID, recipientID string) error {
	if _, ok := m.rows[fileID][recipientID]; !ok {
		return common.ErrorNotFound
	}
	delete(m.rows[fileID], recipientID)
	return nil
}

func (m *memFileKeys) DeleteByFile(ctx context.Context, fileID string) error {
	delete(m.rows, fileID)
	return nil
}

func (m *memFileKeys) ListByFile(ctx context.Context, fileID string) ([]*models.FileKey, error) {
	var result []*models.FileKey
	for _, k := range m.rows[fileID] {
		result = append(result, k)
	}
	return result, nil
}

type memFolderKeys struct {
	rows map[string]map[string]*models.FolderKey // folderID -> recipientID
}

func (m *memFolderKeys) Create(ctx context.Context, k *models.FolderKey) error {
	if m.rows[k.FolderID] == nil {
		m.rows[k.FolderID] = map[string]*models.FolderKey{}
	}
	if _, exists := m.rows[k.FolderID][k.RecipientID]; exists {
		return common.ErrorConflict
	}
	k.CreatedAt = time.Now()
	m.rows[k.FolderID][k.RecipientID] = k
	return nil
}

func (m *memFolderKeys) Get(ctx context.Context, folderID, recipientID string) (*models.FolderKey, error) {
	k, ok := m.rows[folderID][recipientID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return k, nil
}

func (m *memFolderKeys) Delete(ctx context.Context, folderID, recipientID string) error {
	if _, ok := m.rows[folderID][recipientID]; !ok {
		return common.ErrorNotFound
	}
	delete(m.rows[folderID], recipientID)
	return nil
}

func (m *memFolderKeys) DeleteByFolder(ctx context.Context, folderID string) error {
	delete(m.rows, folderID)
	return nil
}

type memFolderFileKeys struct {
	rows map[string]map[string]*models.FolderFileKey // fileID -> folderID
}

func (m *memFolderFileKeys) Create(ctx context.Context, k *models.FolderFileKey) error {
	if m.rows[k.FileID] == nil {
		m.rows[k.FileID] = map[string]*models.FolderFileKey{}
	}
	if _, exists := m.rows[k.FileID][k.FolderID]; exists {
		return common.ErrorConflict
	}
	k.CreatedAt = time.Now()
	m.rows[k.FileID][k.FolderID] = k
	return nil
}

func (m *memFolderFileKeys) Get(ctx context.Context, fileID, folderID string) (*models.FolderFileKey, error) {
	k, ok := m.rows[fileID][folderID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return k, nil
}

func (m *memFolderFileKeys) Delete(ctx context.Context, fileID, folderID string) error {
	if _, ok := m.rows[fileID][folderID]; !ok {
		return common.ErrorNotFound
	}
	delete(m.rows[fileID], folderID)
	return nil
}

func (m *memFolderFileKeys) DeleteByFile(ctx context.Context, fileID string) error {
	delete(m.rows, fileID)
	return nil
}

func (m *memFolderFileKeys) DeleteByFolder(ctx context.Context, folderID string) error {
	for fileID := range m.rows {
		delete(m.rows[fileID], folderID)
	}
	return nil
}

type memQuotas struct {
	rows map[string]*models.QuotaSettings
}

func (m *memQuotas) Get(ctx context.Context, userID string) (*models.QuotaSettings, error) {
	q, ok := m.rows[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return q, nil
}

func (m *memQuotas) Upsert(ctx context.Context, settings *models.QuotaSettings) error {
	m.rows[settings.UserID] = settings
	return nil
}

// --- fake repomanager / blob store ---

type fakeRepoManager struct {
	users          *memUsers
	files          *memFiles
	folders        *memFolders
	fileKeys       *memFileKeys
	folderKeys     *memFolderKeys
	folderFileKeys *memFolderFileKeys
	quotas         *memQuotas
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.users }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository             { return m.files }
func (m *fakeRepoManager) Folders(dbx.DBTX) folders.Repository         { return m.folders }
func (m *fakeRepoManager) FileKeys(dbx.DBTX) filekeys.Repository       { return m.fileKeys }
func (m *fakeRepoManager) FolderKeys(dbx.DBTX) folderkeys.Repository   { return m.folderKeys }
func (m *fakeRepoManager) FolderFileKeys(dbx.DBTX) folderfilekeys.Repository {
	return m.folderFileKeys
}
func (m *fakeRepoManager) Quotas(dbx.DBTX) quotas.Repository { return m.quotas }

type fakeBlobStore struct {
	presignPuts int
	presignGets int
	deleted     []string
	deleteErr   error
}

func (b *fakeBlobStore) PresignPut(ctx context.Context) (string, string, error) {
	b.presignPuts++
	key := fmt.Sprintf("blob-%d", b.presignPuts)
	return key, "https://blobs.test/put/" + key, nil
}

func (b *fakeBlobStore) PresignGet(ctx context.Context, key string) (string, error) {
	b.presignGets++
	return "https://blobs.test/get/" + key, nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deleted = append(b.deleted, key)
	return nil
}

// --- test environment ---

type testEnv struct {
	db    *sql.DB
	rm    *fakeRepoManager
	blobs *fakeBlobStore
	cfg   *sc.Config

	identity  *IdentityService
	access    *AccessService
	files     *FileService
	lifecycle *LifecycleService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newNopDB(t)
	fileKeys := &memFileKeys{rows: map[string]map[string]*models.FileKey{}}
	folderKeys := &memFolderKeys{rows: map[string]map[string]*models.FolderKey{}}
	folderFileKeys := &memFolderFileKeys{rows: map[string]map[string]*models.FolderFileKey{}}
	rm := &fakeRepoManager{
		users: &memUsers{byID: map[string]*models.User{}},
		files: &memFiles{
			byID:           map[string]*models.File{},
			fileKeys:       fileKeys,
			folderKeys:     folderKeys,
			folderFileKeys: folderFileKeys,
		},
		folders:        &memFolders{byID: map[string]*models.Folder{}},
		fileKeys:       fileKeys,
		folderKeys:     folderKeys,
		folderFileKeys: folderFileKeys,
		quotas:         &memQuotas{rows: map[string]*models.QuotaSettings{}},
	}
	blobs := &fakeBlobStore{}

	cfg := &sc.Config{}
	cfg.LoadDefaults()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	access := NewAccessService(db, rm)

	return &testEnv{
		db:        db,
		rm:        rm,
		blobs:     blobs,
		cfg:       cfg,
		identity:  NewIdentityService(db, rm),
		access:    access,
		files:     NewFileService(db, rm, access, blobs, cfg),
		lifecycle: NewLifecycleService(db, rm, blobs, cfg, logger),
	}
}

// addUser registers a user directly in the fakes.
func (e *testEnv) addUser(t *testing.T, id string) *models.User {
	t.Helper()
	u := &models.User{
		ID:                  id,
		Username:            id,
		Email:               id + "@example.com",
		EncryptionPublicKey: make([]byte, 32),
		SigningPublicKey:    make([]byte, 32),
	}
	e.rm.users.byID[id] = u
	return u
}

// addFile creates a completed file with the owner's structural grant.
func (e *testEnv) addFile(t *testing.T, id, ownerID string, size int64) *models.File {
	t.Helper()
	f := &models.File{
		ID:           id,
		OwnerID:      ownerID,
		Name:         id + ".bin",
		Size:         size,
		StorageKey:   "blob/" + id,
		UploadStatus: models.UploadCompleted,
		State:        models.StateActive,
		CreatedAt:    time.Now(),
	}
	e.rm.files.byID[id] = f
	if e.rm.fileKeys.rows[id] == nil {
		e.rm.fileKeys.rows[id] = map[string]*models.FileKey{}
	}
	e.rm.fileKeys.rows[id][ownerID] = &models.FileKey{
		FileID:      id,
		RecipientID: ownerID,
		SealedKey:   []byte("sealed-" + id + "-" + ownerID),
		GrantedBy:   ownerID,
		CreatedAt:   time.Now(),
	}
	return f
}

// addFolder creates a folder with the owner's membership row.
func (e *testEnv) addFolder(t *testing.T, id, ownerID string) *models.Folder {
	t.Helper()
	f := &models.Folder{
		ID:        id,
		OwnerID:   ownerID,
		Name:      id,
		State:     models.StateActive,
		CreatedAt: time.Now(),
	}
	e.rm.folders.byID[id] = f
	if e.rm.folderKeys.rows[id] == nil {
		e.rm.folderKeys.rows[id] = map[string]*models.FolderKey{}
	}
	e.rm.folderKeys.rows[id][ownerID] = &models.FolderKey{
		FolderID:    id,
		RecipientID: ownerID,
		SealedKey:   []byte("sealed-folder-" + id + "-" + ownerID),
		GrantedBy:   ownerID,
		CreatedAt:   time.Now(),
	}
	return f
}

// placeFile wires a file into a folder with a folder-scoped wrap.
func (e *testEnv) placeFile(t *testing.T, fileID, folderID string) {
	t.Helper()
	f, ok := e.rm.files.byID[fileID]
	if !ok {
		t.Fatalf("file %s not found", fileID)
	}
	f.FolderID = &folderID
	if e.rm.folderFileKeys.rows[fileID] == nil {
		e.rm.folderFileKeys.rows[fileID] = map[string]*models.FolderFileKey{}
	}
	e.rm.folderFileKeys.rows[fileID][folderID] = &models.FolderFileKey{
		FileID:     fileID,
		FolderID:   folderID,
		WrappedKey: []byte("wrapped-" + fileID),
		Nonce:      []byte("nonce-" + fileID),
		CreatedAt:  time.Now(),
	}
}
