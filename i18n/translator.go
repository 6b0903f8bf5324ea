package i18n

// Translator retrieves localized messages for Issue codes.
// data provides optional metadata to embed in the message (for example,
// "expected" or "got").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	switch t.lang {
	case "ja":
		switch code {
		case "malformed_node":
			return "スキーマノードが不正です"
		case "unknown_type":
			return "未知の型タグです"
		case "path_not_found":
			return "パスが見つかりません"
		case "cyclic_reference":
			return "参照が循環しています"
		case "parse_error":
			return "解析エラー"
		case "type_mismatch":
			return "型が一致しません"
		case "enum_violation":
			return "列挙値に含まれていません"
		case "out_of_bounds":
			return "数値が範囲外です"
		case "coercion_failed":
			return "変換できません"
		case "required":
			return "必須プロパティが不足しています"
		case "readonly":
			return "読み取り専用です"
		case "key_too_long":
			return "キーワードが長すぎます"
		}
	default: // "en"
		switch code {
		case "malformed_node":
			return "malformed schema node"
		case "unknown_type":
			return "unknown type tag"
		case "path_not_found":
			return "path not found"
		case "cyclic_reference":
			return "cyclic reference"
		case "parse_error":
			return "parse error"
		case "type_mismatch":
			return "type mismatch"
		case "enum_violation":
			return "value not in enum"
		case "out_of_bounds":
			return "value out of bounds"
		case "coercion_failed":
			return "can not coerce value"
		case "required":
			return "required property missing"
		case "readonly":
			return "property is readonly"
		case "key_too_long":
			return "keyword exceeds length limit"
		}
	}
	return code
}

var currentTranslator Translator = dictTranslator{lang: "en"}

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	currentTranslator = dictTranslator{lang: lang}
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		return
	}
	currentTranslator = tr
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return currentTranslator.Message(code, data) }
