package salesforce

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// UpdateProperty updates a Property record with the given fields.
func UpdateProperty(ctx context.Context, c Client, propertyID string, fields map[string]any) error {
	if propertyID == "" {
		return eris.New("sf: property id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Property__c", propertyID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update property %s", propertyID))
	}
	return nil
}

// UpsertContactByEmail creates or updates a Contact keyed by email and links
// it to the property. Keying on email keeps retries idempotent.
func UpsertContactByEmail(ctx context.Context, c Client, propertyID, email string, fields map[string]any) (string, error) {
	if email == "" {
		return "", eris.New("sf: contact email is required")
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	if propertyID != "" {
		fields["Property__c"] = propertyID
	}
	id, err := c.UpsertOne(ctx, "Contact", "Email__c", email, fields)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: upsert contact %s", email))
	}
	return id, nil
}

// AttachNote attaches a note to the given property record.
func AttachNote(ctx context.Context, c Client, propertyID, title, body string) error {
	if propertyID == "" {
		return eris.New("sf: property id is required for note")
	}
	_, err := c.InsertOne(ctx, "Note", map[string]any{
		"ParentId": propertyID,
		"Title":    title,
		"Body":     body,
	})
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: attach note to %s", propertyID))
	}
	return nil
}

// CreateFollowUpTask creates a follow-up task on the property for the sales
// team, due the given number of days out.
func CreateFollowUpTask(ctx context.Context, c Client, propertyID, subject string, dueInDays int) (string, error) {
	if propertyID == "" {
		return "", eris.New("sf: property id is required for task")
	}
	id, err := c.InsertOne(ctx, "Task", map[string]any{
		"WhatId":       propertyID,
		"Subject":      subject,
		"Status":       "Not Started",
		"ActivityDate": time.Now().UTC().AddDate(0, 0, dueInDays).Format("2006-01-02"),
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: create task for %s", propertyID))
	}
	return id, nil
}
