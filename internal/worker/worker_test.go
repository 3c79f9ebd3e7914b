package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"braid/internal/exp"
)

// mockRepoGit scripts the git surface a worker touches. Unset funcs fall
// back to benign defaults so tests only wire what they assert on.
type mockRepoGit struct {
	GetRefFunc func(ctx context.Context, name string, follow bool) (string, error)
	SetRefs    []string
}

func (m *mockRepoGit) GetRef(ctx context.Context, name string, follow bool) (string, error) {
	if m.GetRefFunc != nil {
		return m.GetRefFunc(ctx, name, follow)
	}
	return "", nil
}

func (m *mockRepoGit) Checkout(ctx context.Context, rev string, detach bool) error { return nil }
func (m *mockRepoGit) StashApply(ctx context.Context, rev string) error            { return nil }
func (m *mockRepoGit) Add(ctx context.Context, paths []string) error               { return nil }
func (m *mockRepoGit) Commit(ctx context.Context, message string) (string, error) {
	return "3333333333333333333333333333333333333333", nil
}
func (m *mockRepoGit) TreeHash(ctx context.Context, rev string) (string, error) {
	return "4444444444444444444444444444444444444444", nil
}
func (m *mockRepoGit) SetRef(ctx context.Context, name, newSHA, oldSHA, message string) error {
	m.SetRefs = append(m.SetRefs, name)
	return nil
}

func newMockRepoGit() *mockRepoGit {
	return &mockRepoGit{
		GetRefFunc: func(ctx context.Context, name string, follow bool) (string, error) {
			switch name {
			case exp.ExecHead, exp.ExecMerge:
				return "1111111111111111111111111111111111111111", nil
			case exp.ExecBaseline:
				return "2222222222222222222222222222222222222222", nil
			}
			return "", nil
		},
	}
}

func TestRunCommandSuccess(t *testing.T) {
	sig := make(chan os.Signal)
	killed, err := runCommand(context.Background(), t.TempDir(), []string{"sh", "-c", "exit 0"}, sig)
	require.NoError(t, err)
	assert.False(t, killed)
}

func TestRunCommandFailureCarriesOutput(t *testing.T) {
	sig := make(chan os.Signal)
	_, err := runCommand(context.Background(), t.TempDir(),
		[]string{"sh", "-c", "echo 'missing dependency' >&2; exit 2"}, sig)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "missing dependency"), "got %v", err)
}

func TestReproduceContinuationReportsForce(t *testing.T) {
	git := newMockRepoGit()
	branch := "refs/braid/2222222-" + strings.Repeat("a", 40) + "-checkpoint"
	req := SpawnRequest{
		RepoDir:      t.TempDir(),
		Rev:          "1111111111111111111111111111111111111111",
		Branch:       branch,
		Checkpoint:   true,
		ReproCommand: []string{"sh", "-c", "exit 0"},
	}

	res, code := reproduce(context.Background(), req, git, make(chan os.Signal))
	require.Equal(t, ExitOK, code)

	// Extending an existing checkpoint branch moves a ref that is already
	// published; the harvest must overwrite it.
	assert.True(t, res.Force)
	assert.True(t, res.Checkpoint)
	assert.Equal(t, []string{branch}, git.SetRefs)
}

func TestReproduceFreshRunDoesNotForce(t *testing.T) {
	git := newMockRepoGit()
	req := SpawnRequest{
		RepoDir:      t.TempDir(),
		Rev:          "1111111111111111111111111111111111111111",
		ReproCommand: []string{"sh", "-c", "exit 0"},
	}

	res, code := reproduce(context.Background(), req, git, make(chan os.Signal))
	require.Equal(t, ExitOK, code)

	assert.False(t, res.Force)
	require.Len(t, git.SetRefs, 1)
	info, ok := exp.ParseRef(git.SetRefs[0])
	require.True(t, ok, "fresh runs record a ref in the experiment namespace, got %q", git.SetRefs[0])
	assert.Equal(t, "2222222", info.BaselineSHA)
	assert.False(t, info.Checkpoint)
}

func TestAppendPackedArgs(t *testing.T) {
	cmdline := appendPackedArgs([]string{"make", "train"}, exp.PackedArgs{
		Args:   []string{"--quiet"},
		Kwargs: map[string]string{"seed": "7", "epochs": "20"},
	})
	assert.Equal(t, []string{"make", "train", "--quiet", "epochs=20", "seed=7"}, cmdline)
}

func TestReadRequestErrors(t *testing.T) {
	_, err := ReadRequest(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	_, err = ReadRequest(path)
	assert.Error(t, err)
}
