package ai

import (
	"strings"
	"testing"

	"github.com/oakdemir/pharmachat/internal/model/profile"
)

func TestBuildSystemInstructionsWithoutProfile(t *testing.T) {
	got := BuildSystemInstructions(profile.Record{})
	if got == "" {
		t.Fatal("missing profile must still yield instructions")
	}
	if strings.Contains(got, "Kullanıcı sağlık bilgileri") {
		t.Fatal("empty profile must not add a patient context section")
	}
}

func TestBuildSystemInstructionsWithAttributes(t *testing.T) {
	record := profile.Record{
		UserID: "user-1",
		Attributes: map[string]string{
			"name":      "Ayşe",
			"age":       "34",
			"allergies": "penisilin",
		},
	}

	got := BuildSystemInstructions(record)
	for _, want := range []string{"İsim: Ayşe", "Yaş: 34", "Alerjiler: penisilin"} {
		if !strings.Contains(got, want) {
			t.Fatalf("instructions missing %q:\n%s", want, got)
		}
	}
}

func TestBuildSystemInstructionsIgnoresBlankValues(t *testing.T) {
	record := profile.Record{
		UserID:     "user-1",
		Attributes: map[string]string{"allergies": ""},
	}

	got := BuildSystemInstructions(record)
	if strings.Contains(got, "Alerjiler") {
		t.Fatal("blank attributes must be omitted")
	}
}
