package main

import "testing"

func TestMainUsesOverride(t *testing.T) {
	oldRunner := mainRunner
	defer func() { mainRunner = oldRunner }()

	called := false
	mainRunner = func() { called = true }

	main()
	if !called {
		t.Fatalf("expected main runner to be called")
	}
}
