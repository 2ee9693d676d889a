package validation

import (
	"strings"
	"testing"

	"confessions/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmission(t *testing.T) {
	t.Parallel()
	v := New()

	tests := []struct {
		name    string
		in      SubmissionInput
		wantErr string
	}{
		{name: "valid", in: SubmissionInput{Content: "I love the library at night", Category: "love"}},
		{name: "alias category", in: SubmissionInput{Content: "Exams are brutal this term", Category: "académico"}},
		{name: "exactly min after trim", in: SubmissionInput{Content: "   0123456789   ", Category: "random"}},
		{name: "exactly max", in: SubmissionInput{Content: strings.Repeat("a", 500), Category: "random"}},
		{name: "multibyte counts characters", in: SubmissionInput{Content: strings.Repeat("é", 500), Category: "random"}},
		{name: "too short after trim", in: SubmissionInput{Content: "   short   ", Category: "love"}, wantErr: "content must be at least 10"},
		{name: "too long", in: SubmissionInput{Content: strings.Repeat("a", 501), Category: "love"}, wantErr: "content must be at most 500"},
		{name: "missing content", in: SubmissionInput{Category: "love"}, wantErr: "content is required"},
		{name: "unknown category", in: SubmissionInput{Content: "a valid confession body", Category: "sports"}, wantErr: "category is not a known category"},
		{name: "bad media url", in: SubmissionInput{Content: "a valid confession body", Category: "love", MediaURL: "not a url"}, wantErr: "media_url must be a valid URL"},
		{name: "long affiliation", in: SubmissionInput{Content: "a valid confession body", Category: "love", Affiliation: strings.Repeat("x", 121)}, wantErr: "affiliation must be at most 120"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			err := v.Submission(&in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, models.HasCode(err, models.CodeValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSubmission_Trims(t *testing.T) {
	t.Parallel()
	in := SubmissionInput{
		Content:     "  hello there world  ",
		Category:    " love ",
		Affiliation: "  Medicine ",
		MediaURL:    " https://cdn.example.com/a.png ",
	}
	require.NoError(t, New().Submission(&in))
	assert.Equal(t, "hello there world", in.Content)
	assert.Equal(t, "love", in.Category)
	assert.Equal(t, "Medicine", in.Affiliation)
	assert.Equal(t, "https://cdn.example.com/a.png", in.MediaURL)
}

func TestComment(t *testing.T) {
	t.Parallel()
	v := New()

	ok := CommentInput{Content: " nice "}
	require.NoError(t, v.Comment(&ok))
	assert.Equal(t, "nice", ok.Content)

	blank := CommentInput{Content: "   "}
	assert.Error(t, v.Comment(&blank))
}

func TestModeration(t *testing.T) {
	t.Parallel()
	v := New()

	in := ModerationInput{Reason: "  spam  "}
	require.NoError(t, v.Moderation(&in))
	assert.Equal(t, "spam", in.Reason)

	long := ModerationInput{Reason: strings.Repeat("r", 501)}
	assert.Error(t, v.Moderation(&long))
}
