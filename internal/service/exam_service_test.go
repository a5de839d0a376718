package service

import (
	"english_exam_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validListeningChapter() ImportedChapter {
	return ImportedChapter{
		Type:  model.ChapterListening,
		Title: "Listening",
		Listening: &ListeningPayload{
			Pieces: []ImportedAudioPiece{{
				Title:    "Dialogue 1",
				AudioURL: "https://cdn.example.com/a1.mp3",
				Questions: []ImportedQuestion{{
					Content: "What does the man suggest?",
					Options: []string{"A", "B", "C"},
					Answer:  "B",
				}},
			}},
		},
	}
}

func validGrammarChapter() ImportedChapter {
	return ImportedChapter{
		Type:  model.ChapterGrammar,
		Title: "Grammar",
		Grammar: &GrammarPayload{
			Questions: []ImportedQuestion{{
				Content: "She ___ to school every day.",
				Options: []string{"go", "goes"},
				Answer:  "goes",
			}},
		},
	}
}

func TestImportedChapterValidate(t *testing.T) {
	t.Run("valid listening", func(t *testing.T) {
		ch := validListeningChapter()
		require.NoError(t, ch.validate(0))
	})

	t.Run("valid grammar", func(t *testing.T) {
		ch := validGrammarChapter()
		require.NoError(t, ch.validate(0))
	})

	t.Run("no payload variant", func(t *testing.T) {
		ch := ImportedChapter{Type: model.ChapterGrammar, Title: "Grammar"}
		err := ch.validate(2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one of")
		assert.Contains(t, err.Error(), "chapter 2")
	})

	t.Run("two payload variants", func(t *testing.T) {
		ch := validGrammarChapter()
		ch.Listening = &ListeningPayload{}
		err := ch.validate(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one of")
	})

	t.Run("type and payload mismatch", func(t *testing.T) {
		ch := validGrammarChapter()
		ch.Type = model.ChapterListening
		err := ch.validate(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listening payload is missing")
	})

	t.Run("unknown chapter type", func(t *testing.T) {
		ch := validGrammarChapter()
		ch.Type = "speaking"
		err := ch.validate(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown chapter type")
	})

	t.Run("listening piece without audio url", func(t *testing.T) {
		ch := validListeningChapter()
		ch.Listening.Pieces[0].AudioURL = ""
		err := ch.validate(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audioUrl is required")
	})

	t.Run("reading piece without passage", func(t *testing.T) {
		ch := ImportedChapter{
			Type:  model.ChapterReading,
			Title: "Reading",
			Reading: &ReadingPayload{
				Pieces: []ImportedPassage{{
					Title: "Empty",
					Questions: []ImportedQuestion{{
						Content: "Main idea?",
						Options: []string{"A", "B"},
						Answer:  "A",
					}},
				}},
			},
		}
		err := ch.validate(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "passage text is required")
	})

	t.Run("reading piece with paragraphs only", func(t *testing.T) {
		ch := ImportedChapter{
			Type:  model.ChapterReading,
			Title: "Reading",
			Reading: &ReadingPayload{
				Pieces: []ImportedPassage{{
					Title:      "Paragraphs",
					Paragraphs: []string{"First paragraph.", "Second paragraph."},
					Questions: []ImportedQuestion{{
						Content: "Main idea?",
						Options: []string{"A", "B"},
						Answer:  "A",
					}},
				}},
			},
		}
		require.NoError(t, ch.validate(0))
	})

	t.Run("piece without questions", func(t *testing.T) {
		ch := validListeningChapter()
		ch.Listening.Pieces[0].Questions = nil
		err := ch.validate(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one question")
	})

	t.Run("question with one option", func(t *testing.T) {
		ch := validGrammarChapter()
		ch.Grammar.Questions[0].Options = []string{"goes"}
		err := ch.validate(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least two options")
	})

	t.Run("question without answer", func(t *testing.T) {
		ch := validGrammarChapter()
		ch.Grammar.Questions[0].Answer = "   "
		err := ch.validate(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "answer is required")
	})
}
