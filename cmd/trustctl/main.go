package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"

	"github.com/nabr/verification/internal/scoring"
	"github.com/nabr/verification/internal/workflows"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	hostPort := os.Getenv("TEMPORAL_HOST_PORT")
	if hostPort == "" {
		hostPort = "localhost:7233"
	}
	taskQueue := os.Getenv("TEMPORAL_TASK_QUEUE")
	if taskQueue == "" {
		taskQueue = "verification"
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("trustctl v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	case "verifier-add", "verifier-show", "verifier-revoke", "audit":
		// Store-backed admin commands, no Temporal connection needed.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		switch os.Args[1] {
		case "verifier-add":
			cmdVerifierAdd(ctx)
		case "verifier-show":
			cmdVerifierShow(ctx)
		case "verifier-revoke":
			cmdVerifierRevoke(ctx)
		case "audit":
			cmdAudit(ctx)
		}
		return
	}

	tc, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Temporal at %s: %v\n", hostPort, err)
		os.Exit(1)
	}
	defer tc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "start":
		cmdStart(ctx, tc, taskQueue)
	case "status":
		cmdStatus(ctx, tc)
	case "start-method":
		cmdStartMethod(ctx, tc)
	case "confirm":
		cmdConfirm(ctx, tc)
	case "submit-code":
		cmdSubmitCode(ctx, tc)
	case "review":
		cmdReview(ctx, tc)
	case "attest":
		cmdAttest(ctx, tc)
	case "milestone":
		cmdMilestone(ctx, tc)
	case "revoke":
		cmdRevoke(ctx, tc)
	case "terminate":
		cmdTerminate(ctx, tc)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// orchestratorID is the deterministic workflow id for a subject.
func orchestratorID(subjectID string) string {
	return "subject-verification/" + subjectID
}

func requireArgs(n int, usage string) []string {
	if len(os.Args) < n+2 {
		fmt.Fprintf(os.Stderr, "Usage: trustctl %s %s\n", os.Args[1], usage)
		os.Exit(1)
	}
	return os.Args[2:]
}

func cmdStart(ctx context.Context, tc client.Client, taskQueue string) {
	args := requireArgs(2, "<subject-id> <individual|business|organization>")
	kind := scoring.SubjectKind(args[1])
	if !kind.Valid() {
		fmt.Fprintf(os.Stderr, "Invalid subject kind: %s\n", args[1])
		os.Exit(1)
	}

	run, err := tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        orchestratorID(args[0]),
		TaskQueue: taskQueue,
	}, workflows.NameSubjectOrchestrator, workflows.OrchestratorInput{
		SubjectID:   args[0],
		SubjectKind: kind,
	})
	if err != nil {
		fail("start orchestrator", err)
	}
	fmt.Printf("Started %s (run %s)\n", run.GetID(), run.GetRunID())
}

func cmdStatus(ctx context.Context, tc client.Client) {
	args := requireArgs(1, "<subject-id>")

	resp, err := tc.QueryWorkflow(ctx, orchestratorID(args[0]), "", workflows.QueryStatus)
	if err != nil {
		fail("query status", err)
	}
	var snap workflows.StatusSnapshot
	if err := resp.Get(&snap); err != nil {
		fail("decode status", err)
	}
	out, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(out))
}

func cmdStartMethod(ctx context.Context, tc client.Client) {
	args := requireArgs(2, "<subject-id> <method> [key=value ...]")
	signalSubject(ctx, tc, args[0], workflows.SignalStartMethod, workflows.StartMethodSignal{
		Method: scoring.Method(args[1]),
		Params: parseParams(args[2:]),
	})
}

func cmdConfirm(ctx context.Context, tc client.Client) {
	args := requireArgs(3, "<subject-id> <token> <verifier-id> [location]")
	sig := workflows.VerifierConfirmationSignal{Token: args[1], VerifierID: args[2]}
	if len(args) > 3 {
		sig.Location = args[3]
	}
	signalSubject(ctx, tc, args[0], workflows.SignalVerifierConfirmation, sig)
}

func cmdSubmitCode(ctx context.Context, tc client.Client) {
	args := requireArgs(3, "<subject-id> <attempt-id> <code>")
	signalSubject(ctx, tc, args[0], workflows.SignalSubmitCode, workflows.SubmitCodeSignal{
		AttemptID: args[1],
		Code:      args[2],
	})
}

func cmdReview(ctx context.Context, tc client.Client) {
	args := requireArgs(4, "<subject-id> <attempt-id> <reviewer-id> <approve|reject> [notes]")
	sig := workflows.ReviewerDecisionSignal{
		AttemptID:  args[1],
		ReviewerID: args[2],
		Decision:   args[3],
	}
	if len(args) > 4 {
		sig.Notes = args[4]
	}
	signalSubject(ctx, tc, args[0], workflows.SignalReviewerDecision, sig)
}

func cmdAttest(ctx context.Context, tc client.Client) {
	args := requireArgs(3, "<subject-id> <method> <attestor-id>")
	signalSubject(ctx, tc, args[0], workflows.SignalCommunityAttestation, workflows.CommunityAttestationSignal{
		Method:     scoring.Method(args[1]),
		AttestorID: args[2],
	})
}

func cmdMilestone(ctx context.Context, tc client.Client) {
	args := requireArgs(3, "<subject-id> <platform|transaction> <value>")
	var value int
	fmt.Sscanf(args[2], "%d", &value)
	signalSubject(ctx, tc, args[0], workflows.SignalHistoryMilestone, workflows.HistoryMilestoneSignal{
		Kind:  args[1],
		Value: value,
	})
}

func cmdRevoke(ctx context.Context, tc client.Client) {
	args := requireArgs(3, "<subject-id> <method> <reason>")
	signalSubject(ctx, tc, args[0], workflows.SignalRevokeMethod, workflows.RevokeMethodSignal{
		Method: scoring.Method(args[1]),
		Reason: args[2],
	})
}

func cmdTerminate(ctx context.Context, tc client.Client) {
	args := requireArgs(2, "<subject-id> <reason>")
	signalSubject(ctx, tc, args[0], workflows.SignalTerminate, workflows.TerminateSignal{
		Reason: args[1],
	})
}

func signalSubject(ctx context.Context, tc client.Client, subjectID, signal string, payload interface{}) {
	if err := tc.SignalWorkflow(ctx, orchestratorID(subjectID), "", signal, payload); err != nil {
		fail("signal "+signal, err)
	}
	fmt.Printf("Sent %s to %s\n", signal, subjectID)
}

func parseParams(args []string) map[string]string {
	if len(args) == 0 {
		return nil
	}
	params := make(map[string]string, len(args))
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			params[k] = v
		}
	}
	return params
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "Failed to %s: %v\n", what, err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`trustctl - progressive trust verification control

Usage:
  trustctl start <subject-id> <individual|business|organization>
  trustctl status <subject-id>
  trustctl start-method <subject-id> <method> [key=value ...]
  trustctl confirm <subject-id> <token> <verifier-id> [location]
  trustctl submit-code <subject-id> <attempt-id> <code>
  trustctl review <subject-id> <attempt-id> <reviewer-id> <approve|reject> [notes]
  trustctl attest <subject-id> <personal_reference|community_attestation> <attestor-id>
  trustctl milestone <subject-id> <platform|transaction> <value>
  trustctl revoke <subject-id> <method> <reason>
  trustctl terminate <subject-id> <reason>
  trustctl version

Admin (store-backed, requires DATABASE_URL):
  trustctl verifier-add <principal-id> [rating] [credential,credential...]
  trustctl verifier-show <principal-id>
  trustctl verifier-revoke <principal-id> <reason>
  trustctl audit <subject-id> [since-days]

Environment:
  TEMPORAL_HOST_PORT   Temporal frontend (default localhost:7233)
  TEMPORAL_TASK_QUEUE  Task queue (default verification)
  DATABASE_URL         Postgres DSN for admin commands`)
}
