package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Property represents a Property record in the CRM.
type Property struct {
	ID             string `json:"Id" salesforce:"Id"`
	Name           string `json:"Name" salesforce:"Name"`
	Address        string `json:"Address__c" salesforce:"Address__c"`
	PostalCode     string `json:"Postal_Code__c" salesforce:"Postal_Code__c"`
	City           string `json:"City__c" salesforce:"City__c"`
	KnownOwner     string `json:"Known_Owner__c" salesforce:"Known_Owner__c"`
	KnownEmail     string `json:"Known_Owner_Email__c" salesforce:"Known_Owner_Email__c"`
	ResearchStatus string `json:"Research_Status__c" salesforce:"Research_Status__c"`
}

// propertyFields are the SOQL fields selected for Property queries.
var propertyFields = []string{
	"Id", "Name", "Address__c", "Postal_Code__c", "City__c",
	"Known_Owner__c", "Known_Owner_Email__c", "Research_Status__c",
}

// FindQueuedProperties returns properties queued for ownership research,
// oldest first.
func FindQueuedProperties(ctx context.Context, c Client, limit int) ([]Property, error) {
	if limit <= 0 {
		limit = 100
	}
	soql := fmt.Sprintf(
		"SELECT %s FROM Property__c WHERE Research_Status__c = 'Queued' ORDER BY CreatedDate ASC LIMIT %d",
		strings.Join(propertyFields, ", "),
		limit,
	)

	var props []Property
	if err := c.Query(ctx, soql, &props); err != nil {
		return nil, eris.Wrap(err, "sf: find queued properties")
	}
	return props, nil
}

// FindPropertyByID looks up a single Property record. Returns nil if absent.
func FindPropertyByID(ctx context.Context, c Client, id string) (*Property, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Property__c WHERE Id = '%s' LIMIT 1",
		strings.Join(propertyFields, ", "),
		escapeSoql(id),
	)

	var props []Property
	if err := c.Query(ctx, soql, &props); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find property %s", id))
	}
	if len(props) == 0 {
		return nil, nil
	}
	return &props[0], nil
}

// escapeSoql escapes single quotes and backslashes in a SOQL string literal.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
