package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorInterface(t *testing.T) {
	e := New("TEST_CODE", "something failed")
	if e.Error() != "something failed" {
		t.Errorf("Error() = %q", e.Error())
	}

	cause := stderrors.New("connection refused")
	wrapped := e.WithError(cause)
	if wrapped.Error() != "something failed: connection refused" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("Unwrap 应能找到原始错误")
	}
}

func TestWithErrorDoesNotMutate(t *testing.T) {
	cause := stderrors.New("boom")
	derived := ErrDatabase.WithError(cause)

	if ErrDatabase.Err != nil {
		t.Error("预定义错误被修改")
	}
	if derived.Err != cause {
		t.Error("派生错误未携带原始错误")
	}
	if derived.Code != ErrDatabase.Code {
		t.Error("派生错误码应与原错误一致")
	}
}

func TestIsByCode(t *testing.T) {
	derived := ErrNotFound.WithMessage("message not found")
	if !stderrors.Is(derived, ErrNotFound) {
		t.Error("同错误码应判定为同错误")
	}
	if stderrors.Is(derived, ErrForbidden) {
		t.Error("不同错误码不应判定为同错误")
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"业务错误", ErrRateLimited, CodeRateLimited},
		{"包裹的业务错误", fmt.Errorf("handler: %w", ErrForbidden), CodeForbidden},
		{"普通错误", stderrors.New("plain"), CodeInternal},
		{"派生错误", ErrMessageTooOld.WithError(stderrors.New("x")), CodeMessageTooOld},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("CodeOf = %q 期望 %q", got, tc.want)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(ErrJoinFailed); got != "failed to join room" {
		t.Errorf("MessageOf = %q", got)
	}
	if got := MessageOf(stderrors.New("plain")); got != ErrInternal.Message {
		t.Errorf("普通错误应返回通用信息，实际 %q", got)
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrInvalidInput.WithError(stderrors.New("bad field")))

	var e *Error
	if !As(wrapped, &e) {
		t.Fatal("As 应能提取业务错误")
	}
	if e.Code != CodeInvalidInput {
		t.Errorf("提取的错误码 = %q", e.Code)
	}
}
