package ldb

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/blockkernel/blockkernel/infrastructure/db/database"
)

func validateCurrentCursorKeyAndValue(t *testing.T, testName string, cursor database.Cursor,
	expectedKey *database.Key, expectedValue []byte) {

	cursorKey, err := cursor.Key()
	if err != nil {
		t.Fatalf("%s: Key "+
			"unexpectedly failed: %s", testName, err)
	}
	if !reflect.DeepEqual(cursorKey, expectedKey) {
		t.Fatalf("%s: Key "+
			"returned wrong key. Want: %s, got: %s",
			testName, expectedKey, cursorKey)
	}
	cursorValue, err := cursor.Value()
	if err != nil {
		t.Fatalf("%s: Value "+
			"unexpectedly failed for key %s: %s",
			testName, cursorKey, err)
	}
	if !bytes.Equal(cursorValue, expectedValue) {
		t.Fatalf("%s: Value "+
			"returned wrong value for key %s. Want: %s, got: %s",
			testName, cursorKey, string(expectedValue), string(cursorValue))
	}
}

func recoverFromClosedCursorPanic(t *testing.T, testName string) {
	panicErr := recover()
	if panicErr == nil {
		t.Fatalf("%s: cursor unexpectedly "+
			"didn't panic after being closed", testName)
	}
	expectedPanicErr := "closed cursor"
	if !strings.Contains(fmt.Sprintf("%v", panicErr), expectedPanicErr) {
		t.Fatalf("%s: cursor panicked "+
			"with wrong message. Want: %v, got: %s",
			testName, expectedPanicErr, panicErr)
	}
}

func populateBucket(t *testing.T, testName string, ldb *LevelDB, bucket *database.Bucket, count int) {
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("key%d", i)
		value := fmt.Sprintf("value%d", i)
		err := ldb.Put(bucket.Key([]byte(key)), []byte(value))
		if err != nil {
			t.Fatalf("%s: Put "+
				"unexpectedly failed: %s", testName, err)
		}
	}
}

// TestCursorSanity validates typical cursor usage, including
// opening a cursor over some existing data, seeking back
// and forth over that data, and getting some keys/values out
// of the cursor.
func TestCursorSanity(t *testing.T) {
	forEachDatabase(t, "TestCursorSanity", func(t *testing.T, ldb *LevelDB, testName string) {
		bucket := database.MakeBucket([]byte("bucket"))
		populateBucket(t, testName, ldb, bucket, 10)

		// A neighbouring bucket must stay invisible to the cursor.
		populateBucket(t, testName, ldb, database.MakeBucket([]byte("bucket2")), 3)

		cursor, err := ldb.Cursor(bucket)
		if err != nil {
			t.Fatalf("%s: Cursor unexpectedly failed: %s", testName, err)
		}
		defer func() {
			err := cursor.Close()
			if err != nil {
				t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
			}
		}()

		if !cursor.First() {
			t.Fatalf("%s: First unexpectedly returned non-existence", testName)
		}
		validateCurrentCursorKeyAndValue(t, testName, cursor, bucket.Key([]byte("key0")), []byte("value0"))

		count := 1
		for cursor.Next() {
			count++
		}
		if count != 10 {
			t.Fatalf("%s: cursor visited %d entries, want 10", testName, count)
		}

		err = cursor.Seek(database.MakeBucket().Key([]byte("doesn't exist")))
		if !database.IsNotFoundError(err) {
			t.Fatalf("%s: Seek outside the bucket returned wrong error: %v", testName, err)
		}

		err = cursor.Seek(bucket.Key([]byte("key9")))
		if err != nil {
			t.Fatalf("%s: Seek unexpectedly failed: %s", testName, err)
		}
		validateCurrentCursorKeyAndValue(t, testName, cursor, bucket.Key([]byte("key9")), []byte("value9"))

		if cursor.Next() {
			t.Fatalf("%s: Next after last value is unexpectedly not done", testName)
		}
		if _, err := cursor.Key(); !database.IsNotFoundError(err) {
			t.Fatalf("%s: Key on an exhausted cursor returned wrong error: %v", testName, err)
		}
		if _, err := cursor.Value(); !database.IsNotFoundError(err) {
			t.Fatalf("%s: Value on an exhausted cursor returned wrong error: %v", testName, err)
		}
	})
}

func TestCursorCloseErrors(t *testing.T) {
	tests := []struct {
		name string

		// function is the LevelDBCursor function that we're
		// verifying returns an error after the cursor had
		// been closed.
		function func(cursor database.Cursor) error
	}{
		{
			name: "Seek",
			function: func(cursor database.Cursor) error {
				return cursor.Seek(database.MakeBucket().Key([]byte{}))
			},
		},
		{
			name: "Key",
			function: func(cursor database.Cursor) error {
				_, err := cursor.Key()
				return err
			},
		},
		{
			name: "Value",
			function: func(cursor database.Cursor) error {
				_, err := cursor.Value()
				return err
			},
		},
		{
			name: "Close",
			function: func(cursor database.Cursor) error {
				return cursor.Close()
			},
		},
	}

	for _, test := range tests {
		func() {
			ldb, teardownFunc := prepareMemDatabaseForTest(t, "TestCursorCloseErrors")
			defer teardownFunc()

			cursor, err := ldb.Cursor(database.MakeBucket())
			if err != nil {
				t.Fatalf("TestCursorCloseErrors: Cursor "+
					"unexpectedly failed: %s", err)
			}
			err = cursor.Close()
			if err != nil {
				t.Fatalf("TestCursorCloseErrors: Close "+
					"unexpectedly failed: %s", err)
			}

			err = test.function(cursor)
			if err == nil {
				t.Fatalf("TestCursorCloseErrors: %s "+
					"unexpectedly succeeded", test.name)
			}
			if !strings.Contains(err.Error(), "closed cursor") {
				t.Fatalf("TestCursorCloseErrors: %s "+
					"returned wrong error: %s", test.name, err)
			}
		}()
	}

	ldb, teardownFunc := prepareMemDatabaseForTest(t, "TestCursorCloseErrors")
	defer teardownFunc()
	cursor, _ := ldb.Cursor(database.MakeBucket())
	_ = cursor.Close()
	func() {
		defer recoverFromClosedCursorPanic(t, "TestCursorCloseErrors")
		cursor.First()
	}()
	func() {
		defer recoverFromClosedCursorPanic(t, "TestCursorCloseErrors")
		cursor.Next()
	}()
}
