package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/agentauth/agentauth/pkg/sdk"
)

// Drives one challenge lifecycle against a locally running server. The
// placeholder answer will fail verification; the point is to watch the
// init/fetch/solve flow and the verdict shape.
func main() {
	client := sdk.NewClient(sdk.Config{
		ServerURL: "http://localhost:8080",
		Model:     "demo-agent",
		Framework: "simulate_agent",
	})
	ctx := context.Background()

	fmt.Println("🤖 Agent Starting: Demo Agent")
	fmt.Println("📡 Requesting challenge from AgentAuth...")

	handle, err := client.InitChallenge(ctx, &sdk.InitOptions{Difficulty: sdk.DifficultyEasy})
	if err != nil {
		log.Fatalf("❌ Challenge init failed: %v", err)
	}
	fmt.Printf("✅ Challenge issued: %s (TTL %ds)\n", handle.ID, handle.TTLSeconds)

	ch, err := client.FetchChallenge(ctx, handle)
	if err != nil {
		log.Fatalf("❌ Challenge fetch failed: %v", err)
	}
	fmt.Printf("\n📋 Task type: %s (difficulty %s)\n", ch.Payload.Type, ch.Difficulty)
	fmt.Println("---------------------------------------------------------")
	fmt.Println(ch.Payload.Instructions)
	fmt.Println("---------------------------------------------------------")

	// A real agent computes the answer from the instructions here.
	fmt.Println("\n🤔 Computing answer...")
	time.Sleep(500 * time.Millisecond)

	verdict, err := client.Solve(ctx, handle, "placeholder-answer", nil)
	if err != nil {
		log.Fatalf("❌ Solve request failed: %v", err)
	}

	if !verdict.Success {
		fmt.Printf("\n🚫 Verification failed: %s\n", verdict.Reason)
		return
	}

	fmt.Printf("\n🎟️  CAPABILITY TOKEN RECEIVED!\n")
	fmt.Printf("Token: %s...\n", verdict.Token[:20])
	fmt.Printf("Score: reasoning=%.2f execution=%.2f speed=%.2f\n",
		verdict.Score.Reasoning, verdict.Score.Execution, verdict.Score.Speed)
}
