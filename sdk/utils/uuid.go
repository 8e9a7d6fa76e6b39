package utils

import (
	"github.com/google/uuid"
)

// GenerateUUIDv7 genera un UUIDv7 (ordenable por tiempo).
//
// Se usa como identificador de sesión del link con el motor: cada reconexión
// exitosa obtiene uno nuevo, y los logs/journal quedan ordenados por sesión.
//
// Si el generador falla (entropía agotada) cae a UUIDv4.
func GenerateUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
