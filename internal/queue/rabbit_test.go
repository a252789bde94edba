package queue

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestRetryCount(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"missing", amqp.Table{}, 0},
		{"nil table", nil, 0},
		{"int32", amqp.Table{retryCountHeader: int32(2)}, 2},
		{"int64", amqp.Table{retryCountHeader: int64(5)}, 5},
		{"int", amqp.Table{retryCountHeader: 3}, 3},
		{"wrong type", amqp.Table{retryCountHeader: "7"}, 0},
	}
	for _, tc := range cases {
		if got := retryCount(tc.headers); got != tc.want {
			t.Errorf("%s: retryCount = %d, want %d", tc.name, got, tc.want)
		}
	}
}
