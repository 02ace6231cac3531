package analytics

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/bracketline/eventserve/internal/store"
)

// batchMessage is the SQS wire shape for a batch of analytics rows.
type batchMessage struct {
	Rows []store.AnalyticsRow `json:"rows"`
}

// Publisher pushes analytics batches onto SQS so the request path never
// waits on the database. Sends are fire-and-forget.
type Publisher struct {
	client   *sqs.Client
	queueURL string
}

func NewPublisher(client *sqs.Client, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

func (p *Publisher) Publish(ctx context.Context, rows []store.AnalyticsRow) {
	body, err := json.Marshal(batchMessage{Rows: rows})
	if err != nil {
		log.Printf("ERROR marshal analytics batch: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			log.Printf("ERROR publishing analytics to SQS: %v", err)
		}
	}()
}
