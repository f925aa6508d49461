package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrUniqueViolation は一意制約違反を表す。
// 呼び出し元はerrors.Isで判定し、競合からの回復処理を行う。
var ErrUniqueViolation = errors.New("unique constraint violation")

// uniqueViolationCode はPostgreSQLのunique_violationのSQLSTATE。
const uniqueViolationCode = pq.ErrorCode("23505")

// IsUniqueViolation はerrがPostgreSQLの一意制約違反かどうかを判定する。
func IsUniqueViolation(err error) bool {
	if errors.Is(err, ErrUniqueViolation) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}

// wrapUniqueViolation は一意制約違反をErrUniqueViolationでラップする。
// それ以外のエラーはそのまま返す。
func wrapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return errors.Join(ErrUniqueViolation, err)
	}
	return err
}
