package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/xKoRx/qmtbridge/sdk/utils"
)

const (
	// HeaderSize tamaño del prefijo de largo (u32 little-endian).
	HeaderSize = 4

	// DefaultMaxFrameSize límite por defecto del body de un frame (16MB).
	DefaultMaxFrameSize = 16 << 20
)

// ErrFrameTooLarge indica un header que anuncia un body mayor al permitido.
//
// A diferencia de un body malformado, no hay forma de resincronizar el stream:
// el caller debe tratarlo como falla del canal.
var ErrFrameTooLarge = errors.New("frame too large")

// EncodeFrame antepone el header de largo a un body ya serializado.
//
// El resultado es un único slice listo para un solo Write.
func EncodeFrame(body []byte) []byte {
	frame := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[HeaderSize:], body)
	return frame
}

// Encode serializa v a JSON y retorna el frame completo.
//
// Example:
//
//	frame, err := ipc.Encode(map[string]interface{}{"action": "ping", "req_id": 1, "params": map[string]interface{}{}})
//	// frame[0:4] = largo del body en little-endian
func Encode(v interface{}) ([]byte, error) {
	body, err := utils.MarshalJSON(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame body: %w", err)
	}
	if uint64(len(body)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	return EncodeFrame(body), nil
}

// ParserOption configura un Parser.
type ParserOption func(*Parser)

// WithMalformedHandler registra un callback para frames cuyo body no es JSON
// UTF-8 válido. El frame se descarta y el parsing continúa.
func WithMalformedHandler(fn func(body []byte, err error)) ParserOption {
	return func(p *Parser) {
		p.onMalformed = fn
	}
}

// WithMaxFrameSize cambia el límite de body. 0 deshabilita el chequeo.
func WithMaxFrameSize(n int) ParserOption {
	return func(p *Parser) {
		p.maxFrame = n
	}
}

// Parser reconstruye mensajes completos desde un stream de bytes.
//
// Mantiene los bytes sobrantes entre llamadas a Feed, de modo que un frame
// partido en varias lecturas o varios frames en una sola lectura producen la
// misma secuencia de mensajes. No es thread-safe.
type Parser struct {
	buf         []byte
	onMessage   func(json.RawMessage)
	onMalformed func(body []byte, err error)
	maxFrame    int
}

// NewParser crea un parser que invoca onMessage por cada body válido, en orden.
func NewParser(onMessage func(json.RawMessage), opts ...ParserOption) *Parser {
	p := &Parser{
		onMessage: onMessage,
		maxFrame:  DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed agrega un chunk al acumulador y despacha todos los frames completos.
//
// Retorna ErrFrameTooLarge si un header excede el límite; en ese caso el
// acumulador se descarta porque el stream ya no es confiable.
func (p *Parser) Feed(chunk []byte) error {
	p.buf = append(p.buf, chunk...)

	off := 0
	for len(p.buf)-off >= HeaderSize {
		size := binary.LittleEndian.Uint32(p.buf[off:])
		if p.maxFrame > 0 && uint64(size) > uint64(p.maxFrame) {
			p.buf = p.buf[:0]
			return fmt.Errorf("%w: header announces %d bytes (max %d)", ErrFrameTooLarge, size, p.maxFrame)
		}

		end := off + HeaderSize + int(size)
		if len(p.buf) < end {
			break
		}

		body := p.buf[off+HeaderSize : end]
		off = end

		if err := validateBody(body); err != nil {
			if p.onMalformed != nil {
				p.onMalformed(append([]byte(nil), body...), err)
			}
			continue
		}

		// Copiar: el acumulador se reutiliza en la siguiente llamada
		msg := make(json.RawMessage, len(body))
		copy(msg, body)
		p.onMessage(msg)
	}

	if off > 0 {
		n := copy(p.buf, p.buf[off:])
		p.buf = p.buf[:n]
	}
	return nil
}

// Buffered retorna la cantidad de bytes pendientes de un frame incompleto.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset descarta cualquier frame parcial (nueva sesión).
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}

func validateBody(body []byte) error {
	if len(body) == 0 {
		return NewErrInvalidMessage("empty body", body)
	}
	if !utf8.Valid(body) {
		return NewErrInvalidMessage("invalid UTF-8", body)
	}
	if !json.Valid(body) {
		return NewErrInvalidMessage("invalid JSON", body)
	}
	return nil
}
