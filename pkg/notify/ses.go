package notify

import (
	"context"
	"fmt"
	"log"

	"food-dispatch/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// statusSubjects maps order statuses to customer-facing email subjects.
// Statuses without an entry do not generate email.
var statusSubjects = map[models.OrderStatus]string{
	models.StatusRestaurantAccepted:   "Your order has been accepted",
	models.StatusPreparing:            "Your order is being prepared",
	models.StatusReadyForPickup:       "Your order is ready for pickup",
	models.StatusOnTheWay:             "Your order is on the way",
	models.StatusDelivered:            "Your order has been delivered",
	models.StatusNoRestaurantAccepted: "We couldn't place your order",
	models.StatusCancelled:            "Your order was cancelled",
}

// SESNotifier emails customers about order status changes via AWS SES v2.
type SESNotifier struct {
	client    *sesv2.Client
	fromEmail string
}

// NewSESNotifier creates a notifier for Amazon SES. Credentials are loaded
// from the environment.
func NewSESNotifier(ctx context.Context, region, fromEmail string) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SESNotifier{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
	}, nil
}

// NotifyStatusChange sends a status email to the customer. Errors are logged
// and swallowed.
func (s *SESNotifier) NotifyStatusChange(ctx context.Context, customerEmail string, event StatusEvent) {
	subject, ok := statusSubjects[event.NewStatus]
	if !ok || customerEmail == "" {
		return
	}

	text := fmt.Sprintf("Order %s is now %s.", event.OrderID, event.NewStatus)
	html := fmt.Sprintf("<p>Order <strong>%s</strong> is now <strong>%s</strong>.</p>", event.OrderID, event.NewStatus)

	input := &sesv2.SendEmailInput{
		FromEmailAddress: &s.fromEmail,
		Destination: &types.Destination{
			ToAddresses: []string{customerEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    &subject,
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    &text,
						Charset: aws.String("UTF-8"),
					},
					Html: &types.Content{
						Data:    &html,
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		log.Printf("Failed to send status email for order %s via SES: %v", event.OrderID, err)
	}
}
