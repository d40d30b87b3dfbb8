package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"browse": false, "seed": false, "health": false}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestMainExitsOnBadCommand(t *testing.T) {
	origArgs := os.Args
	origExit := exitFn
	defer func() {
		os.Args = origArgs
		exitFn = origExit
	}()

	code := -1
	exitFn = func(c int) { code = c }
	os.Args = []string{"marketctl", "definitely-not-a-command"}

	main()

	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestMainHealthSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	origArgs := os.Args
	origExit := exitFn
	defer func() {
		os.Args = origArgs
		exitFn = origExit
	}()

	exitCalled := false
	exitFn = func(int) { exitCalled = true }
	os.Args = []string{"marketctl", "health", "--gateway-url", srv.URL}

	main()

	if exitCalled {
		t.Fatal("healthy gateway must not exit non-zero")
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("MARKETCTL_TEST_KEY", "")
	if got := envOr("MARKETCTL_TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOr = %q", got)
	}
	t.Setenv("MARKETCTL_TEST_KEY", "set")
	if got := envOr("MARKETCTL_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("envOr = %q", got)
	}
}
