package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
)

func TestConfirm(t *testing.T) {
	plan := authstack.DestroyPlan(authstack.StackRef{ID: "ref-1", StackID: "AuthStack"})

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got := confirm(strings.NewReader(tt.input), &out, plan)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "ref-1")
			assert.Contains(t, out.String(), "Are you sure?")
		})
	}
}

func TestPrintReport(t *testing.T) {
	report := &authstack.ValidationReport{
		Ref: authstack.StackRef{ID: "ref-1"},
		Checks: []authstack.ValidationCheck{
			{ID: "a", Name: "Passing", Status: authstack.CheckStatusPassed, Severity: authstack.SeverityError},
			{ID: "b", Name: "Failing", Status: authstack.CheckStatusFailed, Severity: authstack.SeverityCritical, Remediation: "fix it"},
			{ID: "c", Name: "Skipped", Status: authstack.CheckStatusSkipped, Severity: authstack.SeverityWarning},
		},
		Summary: authstack.ValidationSummary{PassedChecks: 1, FailedChecks: 1, SkippedChecks: 1},
	}

	var out bytes.Buffer
	printReport(&out, report)

	s := out.String()
	assert.Contains(t, s, "Valid: false")
	assert.Contains(t, s, "1 passed, 1 failed, 1 skipped")
	assert.Contains(t, s, "✓ Passing")
	assert.Contains(t, s, "✗ Failing [critical]")
	assert.Contains(t, s, "Remediation: fix it")
	assert.Contains(t, s, "○ Skipped")
}

func TestPrintRef(t *testing.T) {
	ref := authstack.StackRef{
		ID:            "AuthStack-cognito-1234abcd",
		StackID:       "AuthStack",
		Provider:      authstack.ProviderCognito,
		RemovalPolicy: authstack.RemovalPolicyDestroy,
		ResourceIDs:   map[string]string{authstack.ResourceUserPoolID: "us-east-1_abc"},
		Outputs: map[string]string{
			authstack.OutputUserPoolID:       "us-east-1_abc",
			authstack.OutputUserPoolClientID: "client123",
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Owned:     true,
		Version:   1,
	}

	var out bytes.Buffer
	printRef(&out, ref)

	s := out.String()
	assert.Contains(t, s, "Provider: cognito")
	assert.Contains(t, s, "Created: 2026-01-02T03:04:05Z")
	assert.Contains(t, s, "stepsUserPoolClientId: client123")
	assert.Less(t, strings.Index(s, "stepsUserPoolClientId"), strings.Index(s, "stepsUserPoolId: "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestVersionCmd_SkipsConfig(t *testing.T) {
	a := &app{configPath: "/does/not/exist.yaml"}
	root := newRootCmd(a)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "steps-auth version")
	assert.Nil(t, a.cfg)
}

func TestSynthCmd(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STATE_PATH", t.TempDir()+"/state.json")

	a := &app{}
	root := newRootCmd(a)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"synth", "--format", "json"})

	require.NoError(t, root.Execute())
	s := out.String()
	assert.Contains(t, s, "AWS::Cognito::UserPool")
	assert.Contains(t, s, "AWS::Cognito::UserPoolClient")
	assert.Contains(t, s, authstack.OutputUserPoolID)
}

func TestResolveRef_NoDeployments(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STATE_PATH", t.TempDir()+"/state.json")

	a := &app{}
	root := newRootCmd(a)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"describe"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no deployments of stack AuthStack")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, exitValidationError, exitCode(errInvalid))
	assert.Equal(t, exitError, exitCode(authstack.ErrCancelled))
	assert.Equal(t, exitError, exitCode(fmt.Errorf("destroy failed: %w", authstack.ErrInternal("boom"))))
	assert.Equal(t, exitError, exitCode(errors.New("plain")))
}

func TestDestroyCmd_Declined(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "aws-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "aws-credentials"))
	statePath := filepath.Join(dir, "state.json")
	t.Setenv("STATE_PATH", statePath)

	ref := authstack.StackRef{
		ID:            "AuthStack-cognito-1234abcd",
		StackID:       "AuthStack",
		Provider:      authstack.ProviderCognito,
		ResourceIDs:   map[string]string{authstack.ResourceUserPoolID: "us-east-1_abc"},
		RemovalPolicy: authstack.RemovalPolicyDestroy,
		CreatedAt:     time.Now(),
		Owned:         true,
		Version:       authstack.StateStoreVersion,
	}
	store, err := authstack.NewFileStateStore(statePath)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), ref))

	a := &app{}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("n\n"))
	root.SetArgs([]string{"destroy"})

	err = root.Execute()
	require.ErrorIs(t, err, authstack.ErrCancelled)
	assert.Equal(t, exitError, exitCode(err))
	assert.Contains(t, out.String(), "Are you sure?")
	assert.NotContains(t, out.String(), "Destroyed")

	reloaded, err := authstack.NewFileStateStore(statePath)
	require.NoError(t, err)
	exists, err := reloaded.Exists(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}
