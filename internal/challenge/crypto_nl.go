package challenge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/agentauth/agentauth/internal/crypto"
)

// ============================================================================
// crypto-nl: natural-language crypto pipeline
// ============================================================================

// byteOp is one operation in the pipeline, executed in sequence on the
// current byte buffer.
type byteOp struct {
	Kind   string            `json:"op"`
	Params map[string]string `json:"params,omitempty"`
}

const (
	opXOR       = "xor"
	opReverse   = "reverse"
	opSlice     = "slice"
	opSortAsc   = "sort_asc"
	opRotate    = "rotate_left"
	opSHA256    = "sha256"
	opNot       = "bitwise_not"
	opRepeat    = "repeat"
	opHMAC      = "hmac_sha256"
	opBase64Enc = "base64_encode"
)

var (
	cryptoNLBasicOps  = []string{opXOR, opReverse, opSlice, opSortAsc, opRotate}
	cryptoNLMediumOps = append(append([]string{}, cryptoNLBasicOps...), opSHA256, opNot)
	cryptoNLAllOps    = append(append([]string{}, cryptoNLMediumOps...), opRepeat, opHMAC, opBase64Enc)
)

func cryptoNLOpPool(difficulty Difficulty) []string {
	switch difficulty {
	case DifficultyEasy:
		return cryptoNLBasicOps
	case DifficultyMedium:
		return cryptoNLMediumOps
	default:
		return cryptoNLAllOps
	}
}

type cryptoNLProfile struct {
	ops      int
	dataSize int
}

var cryptoNLProfiles = map[Difficulty]cryptoNLProfile{
	DifficultyEasy:        {ops: 1, dataSize: 16},
	DifficultyMedium:      {ops: 2, dataSize: 32},
	DifficultyHard:        {ops: 4, dataSize: 64},
	DifficultyAdversarial: {ops: 6, dataSize: 128},
}

// Each op has several natural-language phrasings so the instruction text
// cannot be pattern-matched by a fixed script.
var cryptoNLPhrasings = map[string][]func(p map[string]string) string{
	opXOR: {
		func(p map[string]string) string { return fmt.Sprintf("XOR each byte with 0x%s", p["key_hex"]) },
		func(p map[string]string) string {
			return fmt.Sprintf("Apply exclusive-or with the value %s to every byte", p["key"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("Bitwise XOR each octet using the key %s", p["key"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("For every byte, flip bits using 0x%s as mask", p["key_hex"])
		},
	},
	opReverse: {
		func(map[string]string) string { return "Reverse the byte order" },
		func(map[string]string) string { return "Flip the sequence end-to-end" },
		func(map[string]string) string { return "Mirror the byte array so the last byte becomes first" },
		func(map[string]string) string { return "Invert the positional ordering of all bytes" },
	},
	opSlice: {
		func(p map[string]string) string {
			return fmt.Sprintf("Take bytes from offset %s to %s", p["start"], p["end"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("Extract the slice [%s:%s] from the data", p["start"], p["end"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("Isolate bytes at positions %s through the byte before %s", p["start"], p["end"])
		},
	},
	opSortAsc: {
		func(map[string]string) string { return "Sort all bytes in ascending order" },
		func(map[string]string) string { return "Arrange the bytes from smallest to largest value" },
		func(map[string]string) string { return "Order the octets numerically, lowest first" },
	},
	opRotate: {
		func(p map[string]string) string {
			return fmt.Sprintf("Rotate the bytes left by %s positions", p["positions"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("Shift all bytes %s positions to the left, wrapping around", p["positions"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("Circular left-shift the array by %s", p["positions"])
		},
	},
	opSHA256: {
		func(map[string]string) string {
			return "Compute the SHA-256 hash of the current data (producing 32 raw bytes)"
		},
		func(map[string]string) string {
			return "Hash the byte array with SHA-256, replacing it with the 32-byte digest"
		},
		func(map[string]string) string {
			return "Apply SHA-256 to the data -- the result is the raw 32-byte hash"
		},
	},
	opNot: {
		func(map[string]string) string { return "Flip every bit in each byte (bitwise NOT, masked to 8 bits)" },
		func(map[string]string) string { return "Apply bitwise complement to every byte (~byte & 0xFF)" },
		func(map[string]string) string {
			return "Invert all bits in the array -- each byte becomes its one's complement"
		},
	},
	opRepeat: {
		func(p map[string]string) string {
			return fmt.Sprintf("Concatenate the array with itself %s times (total %sx copies)", p["times"], p["times"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("Repeat the data %s times by appending it to itself", p["times"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("Duplicate the byte sequence so it appears %s times in a row", p["times"])
		},
	},
	opHMAC: {
		func(p map[string]string) string {
			return fmt.Sprintf("Compute HMAC-SHA256 of the data using the hex key %s (producing 32 raw bytes)", p["key_hex"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("HMAC the byte array with SHA-256 and key 0x%s, yielding 32 bytes", p["key_hex"])
		},
		func(p map[string]string) string {
			return fmt.Sprintf("Apply HMAC-SHA256 using the secret key (hex) %s -- the result is 32 raw bytes", p["key_hex"])
		},
	},
	opBase64Enc: {
		func(map[string]string) string {
			return "Base64-encode the data, then treat the resulting ASCII string as a new byte array"
		},
		func(map[string]string) string {
			return "Encode the bytes as a base64 string and reinterpret its characters as byte values"
		},
		func(map[string]string) string {
			return "Convert the data to base64 and use the encoded string's character codes as the new bytes"
		},
	},
}

func generateByteOps(count, dataSize int, difficulty Difficulty) []byteOp {
	pool := cryptoNLOpPool(difficulty)
	ops := make([]byteOp, 0, count)

	for i := 0; i < count; i++ {
		kind := pickOne(pool)
		switch kind {
		case opXOR:
			key := randBetween(1, 255)
			ops = append(ops, byteOp{Kind: kind, Params: map[string]string{
				"key":     strconv.Itoa(key),
				"key_hex": fmt.Sprintf("%02X", key),
			}})
		case opSlice:
			start := randBetween(0, dataSize/4)
			end := randBetween(start+4, minInt(start+dataSize/2, dataSize))
			ops = append(ops, byteOp{Kind: kind, Params: map[string]string{
				"start": strconv.Itoa(start),
				"end":   strconv.Itoa(end),
			}})
		case opRotate:
			ops = append(ops, byteOp{Kind: kind, Params: map[string]string{
				"positions": strconv.Itoa(randBetween(1, dataSize/2)),
			}})
		case opRepeat:
			ops = append(ops, byteOp{Kind: kind, Params: map[string]string{
				"times": strconv.Itoa(randBetween(2, 3)),
			}})
		case opHMAC:
			ops = append(ops, byteOp{Kind: kind, Params: map[string]string{
				"key_hex": crypto.ToHex(crypto.RandomBytes(16)),
			}})
		default:
			ops = append(ops, byteOp{Kind: kind})
		}
	}
	return ops
}

func applyByteOp(data []byte, op byteOp) ([]byte, error) {
	switch op.Kind {
	case opXOR:
		key, _ := strconv.Atoi(op.Params["key"])
		out := make([]byte, len(data))
		for i := range data {
			out[i] = data[i] ^ byte(key)
		}
		return out, nil

	case opReverse:
		out := make([]byte, len(data))
		for i := range data {
			out[i] = data[len(data)-1-i]
		}
		return out, nil

	case opSlice:
		start, _ := strconv.Atoi(op.Params["start"])
		end, _ := strconv.Atoi(op.Params["end"])
		start = minInt(start, len(data))
		end = minInt(end, len(data))
		return append([]byte{}, data[start:end]...), nil

	case opSortAsc:
		out := make([]byte, len(data))
		copy(out, data)
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out, nil

	case opRotate:
		if len(data) == 0 {
			return data, nil
		}
		pos, _ := strconv.Atoi(op.Params["positions"])
		pos %= len(data)
		out := make([]byte, len(data))
		for i := range data {
			out[i] = data[(i+pos)%len(data)]
		}
		return out, nil

	case opSHA256:
		return crypto.SHA256Bytes(data), nil

	case opNot:
		out := make([]byte, len(data))
		for i := range data {
			out[i] = ^data[i]
		}
		return out, nil

	case opRepeat:
		times, _ := strconv.Atoi(op.Params["times"])
		out := make([]byte, 0, len(data)*times)
		for t := 0; t < times; t++ {
			out = append(out, data...)
		}
		return out, nil

	case opHMAC:
		key, err := crypto.FromHex(op.Params["key_hex"])
		if err != nil {
			return nil, fmt.Errorf("invalid hmac key hex: %w", err)
		}
		return crypto.HMACSHA256Bytes(key, data), nil

	case opBase64Enc:
		return []byte(base64.StdEncoding.EncodeToString(data)), nil
	}
	return nil, fmt.Errorf("unknown byte operation %q", op.Kind)
}

func executeByteOps(data []byte, ops []byteOp) ([]byte, error) {
	cur := data
	for _, op := range ops {
		next, err := applyByteOp(cur, op)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func byteOpsInstructions(ops []byteOp) string {
	text := ""
	for i, op := range ops {
		phrase := pickOne(cryptoNLPhrasings[op.Kind])(op.Params)
		if i > 0 {
			text += "\n"
		}
		text += fmt.Sprintf("Step %d: %s", i+1, phrase)
	}
	return text
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// CryptoNLDriver phrases a pipeline of byte operations in natural language;
// the solver must parse the prose, execute the pipeline, and hash the result.
type CryptoNLDriver struct{}

func (d *CryptoNLDriver) Name() string { return "crypto-nl" }

func (d *CryptoNLDriver) Dimensions() []Dimension {
	return []Dimension{DimensionReasoning, DimensionExecution}
}

func (d *CryptoNLDriver) EstimatedHumanTimeMs() int64 { return 60000 }
func (d *CryptoNLDriver) EstimatedAITimeMs() int64    { return 500 }

func (d *CryptoNLDriver) Generate(difficulty Difficulty) (*Payload, string, error) {
	profile, ok := cryptoNLProfiles[difficulty]
	if !ok {
		profile = cryptoNLProfiles[DifficultyMedium]
	}
	data := crypto.RandomBytes(profile.dataSize)
	ops := generateByteOps(profile.ops, profile.dataSize, difficulty)

	final, err := executeByteOps(data, ops)
	if err != nil {
		return nil, "", fmt.Errorf("execute pipeline: %w", err)
	}

	// The answer is the hex digest of the final bytes; the stored hash is
	// over that hex string (I1).
	answer := crypto.SHA256Hex(final)
	answerHash := crypto.SHA256Hex([]byte(answer))

	ctx, err := json.Marshal(map[string]any{"ops": ops})
	if err != nil {
		return nil, "", fmt.Errorf("marshal context: %w", err)
	}

	payload := &Payload{
		Type:         d.Name(),
		Instructions: byteOpsInstructions(ops) + "\n\nThen compute the SHA-256 hex digest of the final result.",
		Data:         base64.StdEncoding.EncodeToString(data),
		Steps:        len(ops),
		Context:      ctx,
	}
	return payload, answerHash, nil
}

func (d *CryptoNLDriver) Verify(answerHash, submitted string) (bool, error) {
	return VerifyAnswerHash(answerHash, submitted), nil
}
