package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSQL(t *testing.T) {
	got := SanitizeSQL(`UPDATE "users" SET wallet_signature = '0xabc', display_name = 'Jo' WHERE token='t1'`)
	assert.Equal(t, `UPDATE "users" SET wallet_signature = '***', display_name = 'Jo' WHERE token='***'`, got)
}

func TestOperationOf(t *testing.T) {
	assert.Equal(t, "db.select", operationOf(" select * from users"))
	assert.Equal(t, "db.insert", operationOf("INSERT INTO users"))
	assert.Equal(t, "db.query", operationOf("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "db.unknown", operationOf(""))
}
