package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

type fakeExec struct {
	unlocked bool

	calls []string
	args  []string
}

func (f *fakeExec) isUnlocked() bool { return f.unlocked }
func (f *fakeExec) Unlock(ctx context.Context) error {
	f.calls = append(f.calls, "unlock")
	f.unlocked = true
	return nil
}
func (f *fakeExec) List(ctx context.Context) error { f.calls = append(f.calls, "ls"); return nil }
func (f *fakeExec) Put(ctx context.Context, path, name string) error {
	f.calls = append(f.calls, "put")
	f.args = append(f.args, path, name)
	return nil
}
func (f *fakeExec) Cat(ctx context.Context, name, version string) error {
	f.calls = append(f.calls, "cat")
	f.args = append(f.args, name, version)
	return nil
}
func (f *fakeExec) History(ctx context.Context, name string) error {
	f.calls = append(f.calls, "history")
	return nil
}
func (f *fakeExec) Remove(ctx context.Context, name string) error {
	f.calls = append(f.calls, "rm")
	return nil
}
func (f *fakeExec) Move(ctx context.Context, oldName, newName string) error {
	f.calls = append(f.calls, "mv")
	f.args = append(f.args, oldName, newName)
	return nil
}
func (f *fakeExec) Export(ctx context.Context, path string) error {
	f.calls = append(f.calls, "export")
	return nil
}
func (f *fakeExec) Import(ctx context.Context, path string) error {
	f.calls = append(f.calls, "import")
	return nil
}
func (f *fakeExec) Check(ctx context.Context) error {
	f.calls = append(f.calls, "check")
	return nil
}

func TestRunREPL_UnlockFlowAndCommands(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"help",
		"ls", // locked: must not dispatch
		"unlock",
		"help",
		"ls",
		"put notes.md",
		"cat notes.md 2",
		"history notes.md",
		"mv notes.md renamed.md",
		"check",
		"foobar",
		"exit",
	}, "\n"))

	exec := &fakeExec{unlocked: false}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "status" }, sc)

	wantOrder := []string{"unlock", "ls", "put", "cat", "history", "mv", "check"}
	if len(exec.calls) != len(wantOrder) {
		t.Fatalf("calls mismatch: got %v, want %v", exec.calls, wantOrder)
	}
	for i, c := range exec.calls {
		if c != wantOrder[i] {
			t.Fatalf("commands order mismatch: got %v, want %v", exec.calls, wantOrder)
		}
	}
	if exec.args[2] != "notes.md" || exec.args[3] != "2" {
		t.Fatalf("cat args mismatch: %v", exec.args)
	}
}

func TestRunREPL_UsageAndQuit(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	// Commands with missing arguments print usage and dispatch nothing.
	input := strings.NewReader("put\ncat\nrm\nmv onlyone\nexport\nimport\nquit\n")
	exec := &fakeExec{unlocked: true}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "s" }, sc)

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
