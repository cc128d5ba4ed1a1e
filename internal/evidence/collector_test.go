package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adnord/ownership-cli/internal/model"
)

func TestCollector_OfficialRecord(t *testing.T) {
	c := NewCollector()
	c.AddOfficialRecord(&model.OfficialOwnershipRecord{
		Owners:         []model.Owner{{Name: "A/B Solsortevej 12", IsPrimary: true}},
		Administrators: []model.Owner{{Name: "Dansk Ejendomsadministration ApS"}},
	})

	assert.True(t, c.Evidence().AllowsName("A/B Solsortevej 12"))
	assert.True(t, c.Evidence().AllowsName("Dansk Ejendomsadministration ApS"))
	require.Len(t, c.Contacts(), 2)
	assert.Equal(t, "owner", c.Contacts()[0].Role)
	assert.Equal(t, "administrator", c.Contacts()[1].Role)
}

func TestCollector_RegistryCandidate(t *testing.T) {
	c := NewCollector()
	c.AddRegistryCandidate(&model.RegistryCandidate{
		CVRNumber: 12345678,
		Name:      "Nordbo Ejendomme A/S",
		Email:     "Post@Nordbo.dk",
		Phone:     "33121212",
		Owners:    []string{"Jens Hansen"},
	})

	assert.True(t, c.Evidence().AllowsEmail("post@nordbo.dk"))
	assert.True(t, c.Evidence().AllowsEmail("POST@NORDBO.DK"))
	assert.True(t, c.Evidence().AllowsName("Jens Hansen"))

	require.Len(t, c.Contacts(), 2)
	assert.Equal(t, "post@nordbo.dk", c.Contacts()[0].Email)
	assert.Contains(t, c.Contacts()[0].Source, "CVR 12345678")
}

func TestCollector_Page(t *testing.T) {
	c := NewCollector()
	c.AddPage(model.WebPage{
		URL: "https://nordbo-ejendomme.dk/kontakt",
		Markdown: `# Kontakt
Mette Larsen - ml@nordbo.dk - 33 12 12 12
Udlejning: info@nordbo.dk
`,
	})

	assert.True(t, c.Evidence().AllowsEmail("ml@nordbo.dk"))
	assert.True(t, c.Evidence().AllowsEmail("info@nordbo.dk"))
	assert.True(t, c.Evidence().AllowsName("Mette Larsen"))

	require.Len(t, c.Contacts(), 2)
	assert.Equal(t, "Mette Larsen", c.Contacts()[0].Name)
	assert.Equal(t, "ml@nordbo.dk", c.Contacts()[0].Email)
	assert.Equal(t, "33121212", c.Contacts()[0].Phone)
	assert.Equal(t, "", c.Contacts()[1].Name)
	assert.Equal(t, "info@nordbo.dk", c.Contacts()[1].Email)
}

func TestCollector_DeduplicatesContacts(t *testing.T) {
	c := NewCollector()
	page := model.WebPage{URL: "https://nordbo-ejendomme.dk", Markdown: "info@nordbo.dk"}
	c.AddPage(page)
	c.AddPage(page)

	assert.Len(t, c.Contacts(), 1)
}

func TestCollector_EvidenceGrowsMonotonically(t *testing.T) {
	c := NewCollector()
	c.AddPage(model.WebPage{URL: "https://a.dk", Markdown: "a@a.dk"})
	before := c.Evidence().EmailCount()
	c.AddPage(model.WebPage{URL: "https://b.dk", Markdown: "b@b.dk"})

	assert.Equal(t, before+1, c.Evidence().EmailCount())
	assert.True(t, c.Evidence().AllowsEmail("a@a.dk"))
}

func TestExtractEmails(t *testing.T) {
	emails := extractEmails("Skriv til Jens.Hansen@Firma.dk eller info@firma.dk, info@firma.dk igen")
	assert.Equal(t, []string{"jens.hansen@firma.dk", "info@firma.dk"}, emails)
}

func TestExtractPhones(t *testing.T) {
	phones := extractPhones("Ring +45 33 12 12 12 eller 86121212. Ikke 12345.")
	assert.Contains(t, phones, "+4533121212")
	assert.Contains(t, phones, "86121212")
}

func TestNameNearEmail(t *testing.T) {
	assert.Equal(t, "Mette Larsen", nameNearEmail("Mette Larsen - ml@nordbo.dk", "ml@nordbo.dk"))
	assert.Equal(t, "Søren Kjær", nameNearEmail("kontakt sk@firma.dk (Søren Kjær)", "sk@firma.dk"))
	assert.Equal(t, "", nameNearEmail("info@firma.dk", "info@firma.dk"))
}
