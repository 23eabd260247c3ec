// agentauth-check inspects and verifies AgentAuth capability tokens from the
// command line.
//
// Usage:
//
//	agentauth-check <token>                  decode claims without verification
//	agentauth-check -secret <key> <token>    verify signature, expiry, issuer
//	agentauth-check -hash-key <key>          print the bcrypt hash for a monitor key
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/agentauth/agentauth/internal/events"
	"github.com/agentauth/agentauth/internal/token"
)

func main() {
	secret := flag.String("secret", "", "shared secret; enables full verification")
	hashKey := flag.String("hash-key", "", "print the bcrypt hash of a monitor admin key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := events.HashAdminKey(*hashKey)
		if err != nil {
			fail("hash admin key: %v", err)
		}
		fmt.Println(hash)
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	tokenString := flag.Arg(0)

	fmt.Println("\033[96mAgentAuth Token Inspector\033[0m")
	fmt.Println("---------------------------------------------------------")

	claims, err := token.DecodeUnchecked(tokenString)
	if err != nil {
		fail("decode token: %v", err)
	}
	printClaims(claims)

	if *secret == "" {
		fmt.Println("\033[33mSignature NOT verified (pass -secret to verify)\033[0m")
		return
	}

	if _, err := token.NewBroker(*secret).Verify(tokenString); err != nil {
		fmt.Printf("Verification: \033[31m[FAIL]\033[0m %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Verification: \033[32m[OK]\033[0m signature, expiry, and issuer are valid")
}

func printClaims(claims *token.Claims) {
	fmt.Printf("%-16s %s\n", "Subject:", claims.Subject)
	fmt.Printf("%-16s %s\n", "Issuer:", claims.Issuer)
	fmt.Printf("%-16s %s\n", "Model family:", claims.ModelFamily)
	fmt.Printf("%-16s %v\n", "Challenges:", claims.ChallengeIDs)
	fmt.Printf("%-16s %s\n", "Version:", claims.AgentAuthVersion)

	caps := claims.Capabilities
	fmt.Printf("%-16s reasoning=%.3f execution=%.3f autonomy=%.3f speed=%.3f consistency=%.3f\n",
		"Capabilities:", caps.Reasoning, caps.Execution, caps.Autonomy, caps.Speed, caps.Consistency)
	fmt.Printf("%-16s %.3f\n", "Average:", caps.Average())

	if claims.IssuedAt != nil {
		fmt.Printf("%-16s %s\n", "Issued:", claims.IssuedAt.Format(time.RFC3339))
	}
	if claims.ExpiresAt != nil {
		remaining := time.Until(claims.ExpiresAt.Time).Round(time.Second)
		status := fmt.Sprintf("%s (expires in %s)", claims.ExpiresAt.Format(time.RFC3339), remaining)
		if remaining <= 0 {
			status = fmt.Sprintf("%s \033[31m(EXPIRED)\033[0m", claims.ExpiresAt.Format(time.RFC3339))
		}
		fmt.Printf("%-16s %s\n", "Expires:", status)
	}
	fmt.Println("---------------------------------------------------------")
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "agentauth-check: "+format+"\n", args...)
	os.Exit(1)
}
