package validator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type replyRequest struct {
	Text          string `json:"text" validate:"max=20"`
	ParentReplyID string `json:"parent_reply_id" validate:"omitempty,max=8"`
	Sort          string `json:"sort" validate:"omitempty,oneof=createdAt reactions"`
	Author        string `json:"-" validate:"required"`
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		input any
		want  []ValidationError
	}{
		{
			name:  "Valid",
			input: replyRequest{Text: "hello", Sort: "reactions", Author: "A"},
		},
		{
			name:  "MissingAuthor",
			input: replyRequest{Text: "hello"},
			want:  []ValidationError{{Field: "Author", Message: "is required"}},
		},
		{
			name:  "TooLong",
			input: replyRequest{Text: "this text is far too long", ParentReplyID: "rp_0123456789", Author: "A"},
			want: []ValidationError{
				{Field: "text", Message: "must be at most 20"},
				{Field: "parent_reply_id", Message: "must be at most 8"},
			},
		},
		{
			name:  "UnknownSort",
			input: replyRequest{Sort: "oldest", Author: "A"},
			want:  []ValidationError{{Field: "sort", Message: "must be one of createdAt reactions"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.ValidateStruct(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Errors mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidator_Emoji(t *testing.T) {
	v := New()

	tests := []struct {
		value   string
		wantErr bool
	}{
		{value: "🎉"},
		{value: "👍🏽"},
		{value: "👩‍👩‍👧‍👦"},
		{value: "❤️"},
		{value: "", wantErr: true},
		{value: "lol", wantErr: true},
		{value: "🎉 🎉", wantErr: true},
		{value: "🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			errs := v.Validate(tt.value, "emoji")
			if tt.wantErr && len(errs) == 0 {
				t.Errorf("Validate(%q) expected errors but got none", tt.value)
			}
			if !tt.wantErr && len(errs) > 0 {
				t.Errorf("Validate(%q) got unexpected errors: %v", tt.value, errs)
			}
		})
	}
}

func TestNew(t *testing.T) {
	v := New()
	if v == nil || v.cli == nil {
		t.Error("New() returned invalid validator")
	}
}
