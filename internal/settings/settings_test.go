package settings

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_ReadDotenv(t *testing.T) {
	t.Run("success - .env files is read into env variables", func(t *testing.T) {
		// arrange
		testDotEnvFile := ".env.test"
		f, err := os.Create(testDotEnvFile)
		if err != nil {
			t.Error(err)
		}
		lines := []string{
			`#COMMENTED=asdf`,
			`PIPEWRIGHT_TEST=1234`,
			``,
			`PIPEWRIGHT_TEST2= 2345 `,
		}
		for _, line := range lines {
			f.Write([]byte(line + "\n"))
		}
		f.Close()
		defer os.Remove(testDotEnvFile)

		// act
		ReadDotenv(testDotEnvFile)

		// assert
		assert.Equal(t, os.Getenv("PIPEWRIGHT_TEST"), "1234")
		assert.Equal(t, os.Getenv("PIPEWRIGHT_TEST2"), "2345")
	})
}

func TestSettings_SQLiteDbString(t *testing.T) {
	t.Run("success - readonly and read-write connection strings differ", func(t *testing.T) {
		// arrange
		as := &AppSettings{SQLiteDatabase: "file:.///db.sqlite"}

		// act
		ro := as.SQLiteDbString(true)
		rw := as.SQLiteDbString(false)

		// assert
		assert.Contains(t, ro, "mode=ro")
		assert.Contains(t, rw, "mode=rwc")
		assert.Contains(t, rw, "_txlock=IMMEDIATE")
	})
}
