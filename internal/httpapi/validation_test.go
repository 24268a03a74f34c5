package httpapi

import "testing"

type loginRequestFixture struct {
	Username string `validate:"required"`
	Password string `validate:"required,min=8"`
	Role     string `validate:"oneof=operator admin super_admin"`
}

func TestValidationFieldErrors_TranslatesTagsToMessages(t *testing.T) {
	t.Parallel()

	req := loginRequestFixture{Password: "short", Role: "astronaut"}
	err := validatorInstance().Struct(req)
	if err == nil {
		t.Fatalf("expected validation to fail")
	}

	fieldErrs := validationFieldErrors(err)

	if fieldErrs["Username"] != "is required" {
		t.Fatalf("Username = %q, want %q", fieldErrs["Username"], "is required")
	}
	if fieldErrs["Password"] != "must be at least 8" {
		t.Fatalf("Password = %q, want %q", fieldErrs["Password"], "must be at least 8")
	}
	if fieldErrs["Role"] == "" {
		t.Fatalf("expected a message for the invalid Role field")
	}
}

func TestValidationFieldErrors_NonValidatorErrorFallsBackToRawMessage(t *testing.T) {
	t.Parallel()

	fieldErrs := validationFieldErrors(errBadRequestBody)
	if fieldErrs["_"] != errBadRequestBody.Error() {
		t.Fatalf("fieldErrs[_] = %q, want raw error message", fieldErrs["_"])
	}
}
