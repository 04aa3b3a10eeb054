package stores

import (
	"log"
)

// SanitizeHistory normalizes a fetched thread history into a shape model
// APIs accept. Failed or abandoned turns leave partial tool cycles behind
// (a function_call with no response, or the reverse); those records are
// repaired here when the history is read, never rewritten in the store.
//
// Guarantees on the returned slice:
//   - it starts with a user_message or model_message
//   - every function_call is followed by at least one function_response,
//     except a trailing call whose response arrives in the current request
//   - no function_response appears without a preceding function_call
func SanitizeHistory(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}

	start := validStartIndex(msgs)
	if start == -1 {
		log.Printf("[history] no valid starting message in thread %s, dropping history", msgs[0].ConversationID)
		return []Message{}
	}
	if start > 0 {
		log.Printf("[history] skipping %d orphaned leading message(s) in thread %s", start, msgs[0].ConversationID)
		msgs = msgs[start:]
	}

	return dropBrokenCycles(msgs)
}

// validStartIndex finds the first message a conversation may open with.
// Leading function_call/function_response records are orphans from a
// truncated or failed turn.
func validStartIndex(msgs []Message) int {
	for i, msg := range msgs {
		switch msg.Type {
		case "user_message", "model_message":
			return i
		}
	}
	return -1
}

// dropBrokenCycles removes tool cycles that can no longer be completed.
// A trailing function_call is kept: its response may be supplied by the
// in-flight request's tool results.
func dropBrokenCycles(msgs []Message) []Message {
	result := make([]Message, 0, len(msgs))
	i := 0

	for i < len(msgs) {
		msg := msgs[i]

		switch msg.Type {
		case "user_message", "model_message":
			result = append(result, msg)
			i++

		case "function_call":
			calls := 0
			for i+calls < len(msgs) && msgs[i+calls].Type == "function_call" {
				calls++
			}
			responses := 0
			for i+calls+responses < len(msgs) && msgs[i+calls+responses].Type == "function_response" {
				responses++
			}

			atEnd := i+calls >= len(msgs)
			if responses > 0 || atEnd {
				result = append(result, msgs[i:i+calls+responses]...)
			} else {
				log.Printf("[history] removing %d unanswered function_call(s) at index %d in thread %s", calls, i, msg.ConversationID)
			}
			i += calls + responses

		case "function_response":
			log.Printf("[history] removing orphaned function_response at index %d in thread %s", i, msg.ConversationID)
			i++

		default:
			log.Printf("[history] unknown message type %q at index %d, keeping", msg.Type, i)
			result = append(result, msg)
			i++
		}
	}

	return result
}
