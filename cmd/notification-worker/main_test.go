package main

import (
	"os"
	"os/exec"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger(t *testing.T) {
	oldLevel := log.GetLevel()
	defer log.SetLevel(oldLevel)

	setupLogger("warn")
	if log.GetLevel() != log.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
}

func TestMainWithoutBrokerExits(t *testing.T) {
	if os.Getenv("WORKER_TEST_EXIT") == "1" {
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainWithoutBrokerExits")
	cmd.Env = append(os.Environ(), "WORKER_TEST_EXIT=1", "CAMPUSPRINT_BROKER=none")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
