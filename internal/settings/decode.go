package settings

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalidSettings 는 patch 디코딩 또는 검증 실패를 나타낸다.
var ErrInvalidSettings = errors.New("invalid assistant settings")

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodePatch: 요청 본문(map)을 Patch 로 디코딩합니다.
// 문자열 숫자 등은 약한 타입 변환을 허용하고, 알 수 없는 필드는 거부합니다.
func DecodePatch(input map[string]any) (Patch, error) {
	var patch Patch
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &patch,
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Patch{}, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return Patch{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return patch, nil
}

// Validate 는 설정 값의 범위를 검사한다.
func Validate(s Settings) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}
