package utils

import (
	"encoding/json"
	"unicode/utf8"
)

// ValidateUTF8JSON verifica que los datos sean UTF-8 válido y además JSON válido.
//
// Retorna false en el primer chequeo que falle.
func ValidateUTF8JSON(data []byte) bool {
	return utf8.Valid(data) && json.Valid(data)
}

// MarshalJSON serializa cualquier valor a JSON.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
