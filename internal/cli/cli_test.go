package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quicknotes/internal/domain"
	"quicknotes/internal/reconcile"
	"quicknotes/internal/session"
	"quicknotes/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "cli-test-secret"

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "notesctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"register", "login", "logout", "onboard", "list", "add", "edit", "rm", "ui"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	embeddedFlag := cmd.PersistentFlags().Lookup("embedded")
	require.NotNil(t, embeddedFlag)
	assert.Equal(t, "false", embeddedFlag.DefValue)

	// glog verbosity comes along with the Go flag set
	verbosity := cmd.PersistentFlags().Lookup("v")
	require.NotNil(t, verbosity)
	assert.Equal(t, "v", verbosity.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "xml", "logout"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, `invalid format "xml"`)
}

func TestMatchID(t *testing.T) {
	notes := []domain.Note{{ID: "01HAAA"}, {ID: "01HABB"}, {ID: "01HC"}}

	tests := []struct {
		ref     string
		want    string
		wantErr error
	}{
		{"01HAAA", "01HAAA", nil},
		{"01HC", "01HC", nil},
		{"01HAB", "01HABB", nil},
		{"01HA", "", errAmbiguous},
		{"zz", "", errNoMatch},
		{"", "", errNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := matchID(notes, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type testEnv struct {
	session string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "notes.db"))
	t.Setenv("JWT_SECRET", testSecret)
	return &testEnv{session: filepath.Join(dir, "session.json")}
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--embedded", "--session", e.session}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) list(t *testing.T) []domain.Note {
	t.Helper()
	out, err := e.run(t, "", "--format", "json", "list")
	require.NoError(t, err)

	var notes []domain.Note
	require.NoError(t, json.Unmarshal([]byte(out), &notes), out)
	return notes
}

func (e *testEnv) register(t *testing.T) {
	t.Helper()
	out, err := e.run(t, "", "register", "--username", "alice", "--email", "alice@example.com", "--password", "Password123!")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as alice")
}

func TestEmbeddedWorkflow(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "", "list")
	assert.ErrorIs(t, err, errNotSignedIn)

	env.register(t)

	out, err := env.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No notes yet.")

	out, err = env.run(t, "", "add", "Groceries", "milk")
	require.NoError(t, err)
	assert.Contains(t, out, `Created note "Groceries"`)

	notes := env.list(t)
	require.Len(t, notes, 1)
	assert.Equal(t, "Groceries", notes[0].Title)
	assert.Equal(t, "milk", notes[0].Body)
	id := notes[0].ID

	out, err = env.run(t, "", "edit", id[:10], "--title", "Shopping")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated note "+id)

	notes = env.list(t)
	require.Len(t, notes, 1)
	assert.Equal(t, "Shopping", notes[0].Title)
	assert.Equal(t, "milk", notes[0].Body)

	_, err = env.run(t, "", "edit", id)
	assert.ErrorContains(t, err, "nothing to change")

	_, err = env.run(t, "", "rm", "no-such-note")
	assert.ErrorIs(t, err, errNoMatch)

	out, err = env.run(t, "", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted note "+id)
	assert.Empty(t, env.list(t))
}

func TestEmbeddedCreateFailures(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	_, err := env.run(t, "", "add", "   ")
	assert.ErrorIs(t, err, reconcile.ErrEmptyNote)

	// accepted locally, refused by the store, rolled back
	_, err = env.run(t, "", "add", strings.Repeat("t", 300))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rolled back")
	assert.Contains(t, err.Error(), "validation")

	assert.Empty(t, env.list(t))
}

func TestEmbeddedAccount(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	out, err := env.run(t, "", "onboard", "work")
	require.NoError(t, err)
	assert.Contains(t, out, "Use case set to work")

	saved, err := session.Load(env.session)
	require.NoError(t, err)
	require.NotNil(t, saved.User)
	assert.Equal(t, "work", saved.User.UseCase)

	_, err = env.run(t, "", "onboard", "gaming")
	assert.Error(t, err)

	out, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = env.run(t, "", "list")
	assert.ErrorIs(t, err, errNotSignedIn)

	_, err = env.run(t, "wrong-password\n", "login", "--email", "alice@example.com")
	assert.Error(t, err)

	out, err = env.run(t, "Password123!\n", "login", "--email", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as alice")
}

func TestExpiredSessionIsRenewed(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	saved, err := session.Load(env.session)
	require.NoError(t, err)
	require.NotEmpty(t, saved.RefreshToken)

	expired, err := jwt.GenerateToken(saved.OwnerKey, -time.Minute, testSecret)
	require.NoError(t, err)
	saved.Token = expired
	saved.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, session.Save(env.session, saved))

	out, err := env.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No notes yet.")

	renewed, err := session.Load(env.session)
	require.NoError(t, err)
	assert.NotEqual(t, expired, renewed.Token)
	assert.True(t, renewed.ExpiresAt.After(time.Now()))
	assert.Equal(t, saved.RefreshToken, renewed.RefreshToken)
}
