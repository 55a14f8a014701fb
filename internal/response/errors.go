package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Admission ─────────────────────────────────────────────────────
	ErrAlreadyInProgress   ErrCode = "ALREADY_IN_PROGRESS"
	ErrMaxAttemptsReached  ErrCode = "MAX_ATTEMPTS_REACHED"
	ErrInsufficientCredits ErrCode = "INSUFFICIENT_CREDITS"

	// ─── Attempt ───────────────────────────────────────────────────────
	ErrAttemptLocked        ErrCode = "ATTEMPT_LOCKED"
	ErrQuestionNotInExam    ErrCode = "QUESTION_NOT_IN_EXAM"
	ErrUnknownViolationKind ErrCode = "UNKNOWN_VIOLATION_KIND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Admission ─────────────────────────────────────────────────────
	case ErrAlreadyInProgress:
		return "Anda masih memiliki sesi ujian yang sedang berlangsung untuk paket ini."
	case ErrMaxAttemptsReached:
		return "Batas jumlah percobaan untuk paket ini telah tercapai."
	case ErrInsufficientCredits:
		return "Kredit Anda tidak mencukupi untuk memulai ujian ini."

	// ─── Attempt ───────────────────────────────────────────────────────
	case ErrAttemptLocked:
		return "Sesi ujian ini telah berakhir dan tidak menerima perubahan."
	case ErrQuestionNotInExam:
		return "Pertanyaan ini bukan bagian dari paket ujian Anda."
	case ErrUnknownViolationKind:
		return "Jenis pelanggaran tidak dikenali."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
