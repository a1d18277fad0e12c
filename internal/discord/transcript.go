package discord

// maxMessageLen is Discord's content limit.
const maxMessageLen = 2000

// transcriptChunkLen leaves room for the surrounding code fence.
const transcriptChunkLen = maxMessageLen - 6

// chunkTranscript splits text into code-fenced messages that each fit in one
// Discord message. Splits fall on rune boundaries.
func chunkTranscript(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	out := make([]string, 0, len(runes)/transcriptChunkLen+1)
	for i := 0; i < len(runes); i += transcriptChunkLen {
		end := i + transcriptChunkLen
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, "```"+string(runes[i:end])+"```")
	}
	return out
}
