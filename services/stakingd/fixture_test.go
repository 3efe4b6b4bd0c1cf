package stakingd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stakevault/config"
	"stakevault/core/events"
	"stakevault/crypto"
	"stakevault/observability"
	"stakevault/storage"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testStart  = int64(1_700_000_000)
)

var (
	vaultAddr = crypto.AddressFromArray([20]byte{0xAA})
	adminAddr = crypto.AddressFromArray([20]byte{0xAD})
	aliceAddr = crypto.AddressFromArray([20]byte{0x01})
	bobAddr   = crypto.AddressFromArray([20]byte{0x02})
)

type fixture struct {
	t       *testing.T
	now     int64
	db      storage.Database
	vault   *Vault
	journal *Journal
	hub     *Hub
	handler http.Handler
	export  string
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testGenesis() *config.Vault {
	return &config.Vault{
		VaultAddress:              vaultAddr.String(),
		Admin:                     adminAddr.String(),
		InitialApyPercentage:      50,
		InitialApyDurationSeconds: 10,
		ExitPenaltyPercentage:     5,
		WithdrawFeePercentage:     1,
		StartRewardOnCreate:       true,
		Apy:                       []config.ApyOption{{DurationSeconds: 60, Percentage: 20}},
		Balances: []config.Balance{
			{Address: aliceAddr.String(), Amount: "1000000"},
			{Address: bobAddr.String(), Amount: "5000"},
			{Address: vaultAddr.String(), Amount: "100000"},
		},
	}
}

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	journal, err := NewJournal(db, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })
	return journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, now: testStart, db: storage.NewMemDB(), export: t.TempDir()}
	f.journal = openTestJournal(t)
	f.hub = NewHub(observability.Staking(), testLogger())

	vault, err := OpenVault(f.db, testGenesis(),
		WithEmitter(events.MultiEmitter{f.journal, f.hub}),
		WithLogger(testLogger()),
		WithClock(func() int64 { return f.now }))
	require.NoError(t, err)
	f.vault = vault

	server := NewServer(ServerConfig{
		Vault:     vault,
		Auth:      NewAuthenticator(AuthConfig{HMACSecret: testSecret}, testLogger()),
		Journal:   f.journal,
		Hub:       f.hub,
		Logger:    testLogger(),
		ExportDir: f.export,
	})
	f.handler = server.Handler()
	return f
}

func (f *fixture) advance(seconds int64) { f.now += seconds }

func (f *fixture) token(addr crypto.Address, scopes ...string) string {
	f.t.Helper()
	token, err := IssueToken([]byte(testSecret), TokenRequest{Subject: addr, Scopes: scopes, TTL: time.Hour})
	require.NoError(f.t, err)
	return token
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
