package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stakevault/crypto"
	"stakevault/services/stakingd"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type recorded struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]interface{}
}

func stubServer(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.RequestURI(), Auth: r.Header.Get("Authorization")}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStakeCommandPostsRequest(t *testing.T) {
	srv, calls := stubServer(t, http.StatusCreated, `{"account":"stake1abc","index":2}`)
	out, err := run(t, "-e", srv.URL, "-t", "tok", "stake", "--amount", "1500000", "--duration", "86400")
	require.NoError(t, err)
	require.Contains(t, out, "Staked 1,500,000 for 1 days as deposit 2 of stake1abc")

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, http.MethodPost, call.Method)
	require.Equal(t, "/v1/stake", call.Path)
	require.Equal(t, "Bearer tok", call.Auth)
	require.Equal(t, "1500000", call.Body["amount"])
	require.Equal(t, float64(86400), call.Body["duration"])
}

func TestCapacityCommand(t *testing.T) {
	srv, calls := stubServer(t, http.StatusOK, `{"capacity":"98765"}`)
	out, err := run(t, "-e", srv.URL, "capacity")
	require.NoError(t, err)
	require.Contains(t, out, "Reward capacity: 98,765")
	require.Equal(t, "/v1/vault/capacity", (*calls)[0].Path)
}

func TestUnstakeCommandRequiresSelector(t *testing.T) {
	srv, calls := stubServer(t, http.StatusOK, `{}`)
	_, err := run(t, "-e", srv.URL, "unstake")
	require.ErrorContains(t, err, "--index or --all")
	require.Empty(t, *calls)

	srv, calls = stubServer(t, http.StatusOK, `{"account":"a","payout":"990","reward":"0","settlements":[]}`)
	out, err := run(t, "-e", srv.URL, "--json", "unstake", "--all")
	require.NoError(t, err)
	require.Equal(t, "/v1/unstake/all", (*calls)[0].Path)
	require.Contains(t, out, `"payout":"990"`)
}

func TestEventsCommandBuildsQuery(t *testing.T) {
	srv, calls := stubServer(t, http.StatusOK, `{"events":[]}`)
	_, err := run(t, "-e", srv.URL, "events", "--type", "staking.reward", "--after", "7", "--limit", "5")
	require.NoError(t, err)
	require.Equal(t, "/v1/events?after=7&limit=5&type=staking.reward", (*calls)[0].Path)
}

func TestAdminUnstakeAll(t *testing.T) {
	srv, calls := stubServer(t, http.StatusOK, `{"account":"a","payout":"5","reward":"0","settlements":[]}`)
	_, err := run(t, "-e", srv.URL, "admin", "unstake", "--account", "stake1xyz", "--all")
	require.NoError(t, err)
	call := (*calls)[0]
	require.Equal(t, "/v1/admin/unstake/all", call.Path)
	require.Equal(t, "stake1xyz", call.Body["account"])
	require.NotContains(t, call.Body, "index")
}

func TestAdminPauseRejectsUnknownState(t *testing.T) {
	srv, calls := stubServer(t, http.StatusOK, `{"paused":true}`)
	_, err := run(t, "-e", srv.URL, "admin", "pause", "maybe")
	require.Error(t, err)
	require.Empty(t, *calls)

	out, err := run(t, "-e", srv.URL, "admin", "pause", "on")
	require.NoError(t, err)
	require.Contains(t, out, "Operator pause on")
	require.Equal(t, true, (*calls)[0].Body["paused"])
}

func TestCommandSurfacesServerError(t *testing.T) {
	srv, _ := stubServer(t, http.StatusForbidden, `{"error":"staking engine: unauthorized","request_id":"r-1"}`)
	_, err := run(t, "-e", srv.URL, "admin", "reset")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "r-1", apiErr.RequestID)
	require.Contains(t, err.Error(), "unauthorized")
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	subject := crypto.AddressFromArray([20]byte{0x42})
	out, err := run(t, "token", "--subject", subject.String(), "--scope", "stake,admin", "--secret", testSecret)
	require.NoError(t, err)

	auth := stakingd.NewAuthenticator(stakingd.AuthConfig{HMACSecret: testSecret}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	principal, err := auth.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	require.True(t, principal.Address.Equal(subject))
	require.True(t, principal.HasScope(stakingd.ScopeAdmin))

	_, err = run(t, "token", "--secret", testSecret)
	require.ErrorContains(t, err, "--subject or --keystore")
}

func TestKeygenThenTokenFromKeystore(t *testing.T) {
	dir := t.TempDir()
	passFile := filepath.Join(dir, "pass")
	require.NoError(t, os.WriteFile(passFile, []byte("correct horse battery\n"), 0o600))
	keystorePath := filepath.Join(dir, "admin.json")

	out, err := run(t, "keygen", "--out", keystorePath, "--passphrase-file", passFile)
	require.NoError(t, err)
	addr, err := crypto.DecodeAddress(strings.TrimSpace(out))
	require.NoError(t, err)

	_, err = run(t, "keygen", "--out", keystorePath, "--passphrase-file", passFile)
	require.ErrorIs(t, err, crypto.ErrKeystoreExists)

	out, err = run(t, "token", "--keystore", keystorePath, "--secret", testSecret)
	require.NoError(t, err)
	auth := stakingd.NewAuthenticator(stakingd.AuthConfig{HMACSecret: testSecret}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	principal, err := auth.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	require.True(t, principal.Address.Equal(addr))
	require.Equal(t, []string{stakingd.ScopeStake}, principal.Scopes)
}

func TestGroupDigits(t *testing.T) {
	require.Equal(t, "0", groupDigits("0"))
	require.Equal(t, "999", groupDigits("999"))
	require.Equal(t, "1,000", groupDigits("1000"))
	require.Equal(t, "12,345,678", groupDigits("12345678"))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "10s", formatDuration(10))
	require.Equal(t, "1h0m0s", formatDuration(3600))
	require.Equal(t, "30 days", formatDuration(30*86400))
}
