package share

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liondadev/quick-file-share/blob"
	"github.com/liondadev/quick-file-share/credential"
	"github.com/liondadev/quick-file-share/store"
	"github.com/liondadev/quick-file-share/thumbnail"
	"github.com/liondadev/quick-file-share/token"
	"github.com/liondadev/quick-file-share/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type record struct {
	event   string
	details map[string]any
}

type recorder struct {
	mu      sync.Mutex
	records []record
}

func (r *recorder) Record(_ context.Context, event string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record{event, details})
}

func (r *recorder) last() record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[len(r.records)-1]
}

// flakyBlobs fails deletes for the listed keys.
type flakyBlobs struct {
	blob.Store
	failDelete map[string]bool
}

func (f *flakyBlobs) Delete(ctx context.Context, key string) error {
	if f.failDelete[key] {
		return errors.New("disk on fire")
	}
	return f.Store.Delete(ctx, key)
}

type env struct {
	dir     string
	store   *store.Store
	blobs   *flakyBlobs
	signer  *token.Signer
	audit   *recorder
	clock   *clock
	manager *Manager
	gate    *Gate
	owner   *types.User
}

func newEnv(t *testing.T, revoke bool) *env {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "share.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fs, err := blob.NewFS(filepath.Join(dir, "files"))
	require.NoError(t, err)

	c := &clock{t: time.Unix(1_700_000_000, 0)}
	opts := []token.Option{token.WithClock(c.Now)}
	if revoke {
		opts = append(opts, token.WithRevoker(token.NewMemoryRevoker(c.Now)))
	}
	signer, err := token.NewSigner([]byte("test-key"), opts...)
	require.NoError(t, err)

	e := &env{
		dir:    dir,
		store:  st,
		blobs:  &flakyBlobs{Store: fs, failDelete: map[string]bool{}},
		signer: signer,
		audit:  &recorder{},
		clock:  c,
	}
	e.manager, err = NewManager(st, e.blobs, credential.Bcrypt{Cost: bcrypt.MinCost}, signer, e.audit, Options{
		BaseURL:        "https://share.example.com/app",
		RevokeOnChange: revoke,
		Now:            c.Now,
	})
	require.NoError(t, err)
	e.gate = NewGate(e.manager)

	e.owner = &types.User{Username: "alice", HashedPassword: "x", IsActive: true}
	require.NoError(t, st.CreateUser(context.Background(), e.owner))
	return e
}

func (e *env) create(t *testing.T, files ...string) *types.Share {
	t.Helper()
	uploads := make([]Upload, len(files))
	for i, name := range files {
		uploads[i] = Upload{Filename: name, MimeType: "text/plain", Body: strings.NewReader("contents of " + name)}
	}
	created, err := e.manager.CreateShare(context.Background(), e.owner, uploads)
	require.NoError(t, err)
	return created.Share
}

func ptr[T any](v T) *T { return &v }

func TestCreateShare(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	created, err := e.manager.CreateShare(ctx, e.owner, []Upload{
		{Filename: "../../etc/passwd", Body: strings.NewReader("root")},
		{Filename: "report.pdf", MimeType: "application/pdf", Body: strings.NewReader("%PDF")},
	})
	require.NoError(t, err)

	sh := created.Share
	assert.Equal(t, "https://share.example.com/app/download/"+sh.PublicId, created.Link)
	assert.Equal(t, e.clock.Now().Add(DefaultExpiry).Unix(), sh.ExpiresAt.Int64)
	assert.False(t, sh.Locked())
	require.Len(t, sh.Files, 2)

	assert.Equal(t, "passwd", sh.Files[0].Filename)
	assert.Equal(t, "application/octet-stream", sh.Files[0].MimeType)
	assert.NotContains(t, sh.Files[0].Locator, "passwd")
	assert.NotEqual(t, sh.Files[0].Locator, sh.Files[1].Locator)
	assert.Equal(t, int64(4), sh.Files[1].Size)

	rec := e.audit.last()
	assert.Equal(t, "upload", rec.event)
	assert.Equal(t, "alice", rec.details["username"])
	assert.Equal(t, sh.PublicId, rec.details["share_id"])
	assert.Equal(t, []string{"passwd", "report.pdf"}, rec.details["files"])

	_, err = e.manager.CreateShare(ctx, e.owner, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateShareRemovesBlobsWhenRecordFails(t *testing.T) {
	e := newEnv(t, false)

	nobody := &types.User{Id: 9999, Username: "ghost"}
	_, err := e.manager.CreateShare(context.Background(), nobody, []Upload{{Filename: "a.txt", Body: strings.NewReader("a")}})
	require.Error(t, err, "owner must exist")

	entries, err := filepath.Glob(filepath.Join(e.dir, "files", "*"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetLiveShareExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	sh := e.create(t, "a.txt")

	_, err := e.manager.GetLiveShare(ctx, sh.PublicId)
	require.NoError(t, err)

	e.clock.Advance(DefaultExpiry - time.Second)
	_, err = e.manager.GetLiveShare(ctx, sh.PublicId)
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	_, err = e.manager.GetLiveShare(ctx, sh.PublicId)
	assert.ErrorIs(t, err, ErrExpired, "expiry equal to now counts as expired")

	_, err = e.gate.CheckStatus(ctx, sh.PublicId)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = e.gate.Unlock(ctx, sh.PublicId, "")
	assert.ErrorIs(t, err, ErrExpired)

	_, err = e.manager.GetLiveShare(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	sh := e.create(t, "a.txt")

	_, err := e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{ExpiresMinutes: ptr(1441)})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{ExpiresMinutes: ptr(-1), Password: ptr("abc")})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	unchanged, err := e.manager.GetLiveShare(ctx, sh.PublicId)
	require.NoError(t, err)
	assert.False(t, unchanged.Locked(), "rejected update must not apply the password either")

	e.clock.Advance(10 * time.Minute)
	updated, err := e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{ExpiresMinutes: ptr(MaxExpiryMinutes)})
	require.NoError(t, err)
	assert.Equal(t, e.clock.Now().Add(24*time.Hour).Unix(), updated.ExpiresAt.Int64, "expiry resets from now")

	updated, err = e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{ExpiresMinutes: ptr(0)})
	require.NoError(t, err)
	_, err = e.manager.GetLiveShare(ctx, updated.PublicId)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestUpdateSettingsPasswordLengthIsInBytes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	sh := e.create(t, "a.txt")

	long := strings.Repeat("é", 40)
	require.Len(t, long, 80)
	_, err := e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{Password: &long})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	fits := strings.Repeat("é", 36)
	updated, err := e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{Password: &fits})
	require.NoError(t, err)
	assert.True(t, updated.Locked())
}

func TestUpdateSettingsOwnership(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	sh := e.create(t, "a.txt")

	mallory := &types.User{Username: "mallory", HashedPassword: "x", IsActive: true}
	require.NoError(t, e.store.CreateUser(ctx, mallory))

	_, errOther := e.manager.UpdateSettings(ctx, sh.PublicId, mallory.Id, Settings{Password: ptr("pwned")})
	_, errMissing := e.manager.UpdateSettings(ctx, "no-such-share", e.owner.Id, Settings{Password: ptr("pwned")})
	assert.ErrorIs(t, errOther, ErrNotFound)
	assert.ErrorIs(t, errMissing, ErrNotFound)

	st, err := e.gate.CheckStatus(ctx, sh.PublicId)
	require.NoError(t, err)
	assert.False(t, st.Locked)
}

func TestUnlockScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	sh := e.create(t, "one.txt", "two.txt")

	st, err := e.gate.CheckStatus(ctx, sh.PublicId)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Len(t, st.Files, 2)
	assert.Equal(t, "success", e.audit.last().details["status"])

	_, err = e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{Password: ptr("abc123")})
	require.NoError(t, err)

	st, err = e.gate.CheckStatus(ctx, sh.PublicId)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Empty(t, st.Files)
	assert.Equal(t, "locked_waiting_password", e.audit.last().details["status"])

	for _, wrong := range []string{"wrong", ""} {
		st, err = e.gate.Unlock(ctx, sh.PublicId, wrong)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Nil(t, st)
		rec := e.audit.last()
		assert.Equal(t, "unlock_attempt", rec.details["event"])
		assert.Equal(t, "failure_incorrect_password", rec.details["status"])
	}

	st, err = e.gate.Unlock(ctx, sh.PublicId, "abc123")
	require.NoError(t, err)
	assert.False(t, st.Locked)
	require.Len(t, st.Files, 2)
	assert.Equal(t, "success", e.audit.last().details["status"])

	for i, ft := range st.Files {
		id, err := e.signer.Validate(ctx, ft.Token)
		require.NoError(t, err)
		assert.Equal(t, sh.Files[i].Id, id)
		assert.Equal(t, sh.Files[i].Filename, ft.Filename)
	}

	_, err = e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{Password: ptr("")})
	require.NoError(t, err)
	st, err = e.gate.CheckStatus(ctx, sh.PublicId)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Len(t, st.Files, 2)

	st, err = e.gate.Unlock(ctx, sh.PublicId, "anything")
	require.NoError(t, err, "open shares unlock with any password")
	assert.Len(t, st.Files, 2)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	sh := e.create(t, "hello.txt")

	st, err := e.gate.CheckStatus(ctx, sh.PublicId)
	require.NoError(t, err)

	f, rc, err := e.gate.Fetch(ctx, st.Files[0].Token)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello.txt", f.Filename)
	assert.Equal(t, "contents of hello.txt", string(body))

	rec := e.audit.last()
	assert.Equal(t, "file_download", rec.details["event"])
	assert.Equal(t, f.Id, rec.details["file_id"])

	_, _, err = e.gate.Fetch(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)

	e.clock.Advance(token.DownloadTTL)
	_, _, err = e.gate.Fetch(ctx, st.Files[0].Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestFetchOutlivesPasswordChangeUnlessRevoked(t *testing.T) {
	ctx := context.Background()

	for _, revoke := range []bool{false, true} {
		e := newEnv(t, revoke)
		sh := e.create(t, "a.txt")
		st, err := e.gate.CheckStatus(ctx, sh.PublicId)
		require.NoError(t, err)

		e.clock.Advance(2 * time.Second)
		_, err = e.manager.UpdateSettings(ctx, sh.PublicId, e.owner.Id, Settings{Password: ptr("secret")})
		require.NoError(t, err)

		_, rc, err := e.gate.Fetch(ctx, st.Files[0].Token)
		if revoke {
			assert.ErrorIs(t, err, ErrUnauthorized)
			continue
		}
		require.NoError(t, err)
		rc.Close()
	}
}

func TestThumbnail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	created, err := e.manager.CreateShare(ctx, e.owner, []Upload{
		{Filename: "pic.png", MimeType: "image/png", Body: &buf},
		{Filename: "notes.txt", MimeType: "text/plain", Body: strings.NewReader("hi")},
	})
	require.NoError(t, err)
	st, err := e.gate.CheckStatus(ctx, created.Share.PublicId)
	require.NoError(t, err)

	thumb, err := e.gate.Thumbnail(ctx, st.Files[0].Token, thumbnail.PNG)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, int(thumbnail.Width), decoded.Bounds().Dx())

	cached, err := e.blobs.Open(ctx, thumbnailKey(created.Share.Files[0].Locator, thumbnail.PNG))
	require.NoError(t, err)
	cached.Close()

	again, err := e.gate.Thumbnail(ctx, st.Files[0].Token, thumbnail.PNG)
	require.NoError(t, err)
	assert.Equal(t, thumb, again)

	_, err = e.gate.Thumbnail(ctx, st.Files[1].Token, thumbnail.PNG)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestThumbnailOfMislabelledUpload(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	created, err := e.manager.CreateShare(ctx, e.owner, []Upload{
		{Filename: "pic.png", MimeType: "image/png", Body: strings.NewReader("not really a png")},
	})
	require.NoError(t, err)
	st, err := e.gate.CheckStatus(ctx, created.Share.PublicId)
	require.NoError(t, err)

	_, err = e.gate.Thumbnail(ctx, st.Files[0].Token, thumbnail.PNG)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, err, thumbnail.ErrCorrupt)

	_, err = e.blobs.Open(ctx, thumbnailKey(created.Share.Files[0].Locator, thumbnail.PNG))
	assert.ErrorIs(t, err, blob.ErrNotExist)
}

func TestThumbnailOfExpiredShareIsNotCached(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	created, err := e.manager.CreateShare(ctx, e.owner, []Upload{{Filename: "pic.png", MimeType: "image/png", Body: &buf}})
	require.NoError(t, err)
	st, err := e.gate.CheckStatus(ctx, created.Share.PublicId)
	require.NoError(t, err)

	// download tokens outlive the share, but a sweep may already be under way
	e.clock.Advance(DefaultExpiry + time.Minute)
	thumb, err := e.gate.Thumbnail(ctx, st.Files[0].Token, thumbnail.GIF)
	require.NoError(t, err)
	assert.NotEmpty(t, thumb)

	_, err = e.blobs.Open(ctx, thumbnailKey(created.Share.Files[0].Locator, thumbnail.GIF))
	assert.ErrorIs(t, err, blob.ErrNotExist)

	n, err := NewSweeper(e.manager, time.Minute, RetainOnBlobError).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	entries, err := filepath.Glob(filepath.Join(e.dir, "files", "*"))
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is left behind")
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	sweeper := NewSweeper(e.manager, time.Minute, RetainOnBlobError)

	old := e.create(t, "old.txt")
	e.clock.Advance(10 * time.Minute)
	fresh := e.create(t, "fresh.txt")

	e.clock.Advance(DefaultExpiry - 10*time.Minute)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a share expiring exactly now is left for the next cycle")

	e.clock.Advance(time.Second)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = e.manager.GetLiveShare(ctx, old.PublicId)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.blobs.Open(ctx, old.Files[0].Locator)
	assert.ErrorIs(t, err, blob.ErrNotExist)

	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sweeping again is a no-op")

	_, err = e.manager.GetLiveShare(ctx, fresh.PublicId)
	assert.NoError(t, err)
}

func TestSweepBlobFailurePolicy(t *testing.T) {
	ctx := context.Background()

	for name, policy := range map[string]SweepPolicy{"retain": RetainOnBlobError, "purge": PurgeOnBlobError} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, false)
			broken := e.create(t, "broken.txt")
			fine := e.create(t, "fine.txt")
			e.blobs.failDelete[broken.Files[0].Locator] = true

			e.clock.Advance(DefaultExpiry + time.Second)
			n, err := NewSweeper(e.manager, time.Minute, policy).Sweep(ctx)
			require.NoError(t, err)

			_, err = e.store.ShareByPublicId(ctx, fine.PublicId)
			assert.ErrorIs(t, err, store.ErrNotFound, "other shares are still swept")

			_, err = e.store.ShareByPublicId(ctx, broken.PublicId)
			if policy == RetainOnBlobError {
				assert.Equal(t, 1, n)
				assert.NoError(t, err, "record kept so the next cycle retries")
			} else {
				assert.Equal(t, 2, n)
				assert.ErrorIs(t, err, store.ErrNotFound)
			}
		})
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	e := newEnv(t, false)
	e.create(t, "a.txt")
	e.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSweeper(e.manager, 10*time.Millisecond, RetainOnBlobError).Run(ctx) }()

	require.Eventually(t, func() bool {
		expired, err := e.store.ExpiredShares(context.Background(), e.clock.Now().Unix())
		return err == nil && len(expired) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
