package core

import "errors"

// Error kinds surfaced by the persistence, envelope and domain layers.
var (
	ErrQuotaExceeded       = errors.New("storage quota exceeded")
	ErrSerialization       = errors.New("value is not serializable")
	ErrCorruptData         = errors.New("stored data is corrupt")
	ErrBackupMissing       = errors.New("backup not found")
	ErrInvalidEnvelope     = errors.New("invalid import envelope")
	ErrIncompatibleVersion = errors.New("incompatible envelope version")
	ErrDuplicateClient     = errors.New("client already exists")
	ErrNegativeStock       = errors.New("stock cannot be negative")
	ErrNotFound            = errors.New("not found")
	ErrBusy                = errors.New("store is busy")
)

// Validation errors.
var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidMonth    = errors.New("invalid month key")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidStatus   = errors.New("invalid order status")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNoInverse       = errors.New("mutation has no inverse")
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrNothingToRedo   = errors.New("nothing to redo")
)

var notices = []struct {
	err  error
	kind string
	msg  string
}{
	{ErrQuotaExceeded, "QuotaExceeded", "Хранилището е пълно. Изтрийте стари резервни копия или експортирайте данните."},
	{ErrSerialization, "SerializationError", "Данните не могат да бъдат записани."},
	{ErrCorruptData, "CorruptData", "Повредени данни. Възстановете от резервно копие."},
	{ErrBackupMissing, "BackupMissing", "Резервното копие не е намерено."},
	{ErrInvalidEnvelope, "InvalidEnvelope", "Файлът за импорт е невалиден."},
	{ErrIncompatibleVersion, "IncompatibleVersion", "Неподдържана версия на файла за импорт."},
	{ErrDuplicateClient, "DuplicateClient", "Клиент с това име вече съществува."},
	{ErrNegativeStock, "NegativeStock", "Наличността не може да бъде отрицателна."},
	{ErrNotFound, "NotFound", "Записът не е намерен."},
	{ErrBusy, "Busy", "Извършва се импорт. Опитайте отново след малко."},
	{ErrInvalidDate, "Validation", "Невалидна дата."},
	{ErrInvalidMonth, "Validation", "Невалиден месец."},
	{ErrEmptyName, "Validation", "Името е задължително."},
	{ErrInvalidQuantity, "Validation", "Невалидно количество."},
	{ErrInvalidStatus, "Validation", "Невалиден статус."},
	{ErrInvalidAmount, "Validation", "Невалидна сума."},
	{ErrNoInverse, "History", "Операцията не може да бъде отменена."},
	{ErrNothingToUndo, "History", "Няма какво да се отмени."},
	{ErrNothingToRedo, "History", "Няма какво да се повтори."},
}

// Notice returns the human readable message shown for err.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	for _, n := range notices {
		if errors.Is(err, n.err) {
			return n.msg
		}
	}
	return "Възникна грешка: " + err.Error()
}

// Kind names the error kind of err, "Internal" when it is not one of ours.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, n := range notices {
		if errors.Is(err, n.err) {
			return n.kind
		}
	}
	return "Internal"
}
