package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/nellyolofsson/wt2/internal/apperr"
	"github.com/nellyolofsson/wt2/internal/document/service"
	"github.com/nellyolofsson/wt2/internal/media"
	"github.com/nellyolofsson/wt2/internal/store"
	"github.com/stretchr/testify/require"
)

const titlesCSV = `show_id,type,title,director,cast,country,date_added,release_year,rating,duration,listed_in,description
s1,Movie,Dick Johnson Is Dead,Kirsten Johnson,,United States,"September 25, 2021",2020,PG-13,90 min,Documentaries,"As her father nears the end of his life, filmmaker Kirsten Johnson stages his death."
s2,TV Show,Blood & Water,,"Ama Qamata, Khosi Ngema","South Africa"," September 24, 2021",2021,TV-MA,2 Seasons,"International TV Shows, TV Dramas",After crossing paths at a party.
s3,Movie,,,,India,,2019,,,,
s4,Movie,Dick Johnson Is Dead,,,,,2020,,,,
s5,Movie,Sankofa,Haile Gerima,,"United States, Ghana, Burkina Faso","September 24, 2021",1993,TV-MA,125 min,Dramas,extra,cells
`

func TestImportTitles(t *testing.T) {
	ctx := context.Background()
	svc := media.NewService(store.NewMemoryStore(store.WithUniqueFields(media.TitleSchema.UniqueFields()...)))
	im := New(svc, media.TitleSchema, WithColumn("release_year", media.FieldReleaseYear))

	res, err := im.Import(ctx, strings.NewReader(titlesCSV))
	require.NoError(t, err)
	require.Equal(t, 3, res.Inserted)
	require.Len(t, res.Failed, 2)
	require.Equal(t, 4, res.Failed[0].Line)
	require.True(t, apperr.Is(res.Failed[0].Err, apperr.KindInsufficientData))
	require.Equal(t, 5, res.Failed[1].Line)
	require.True(t, apperr.Is(res.Failed[1].Err, apperr.KindValidation))

	page, err := svc.Get(ctx, service.GetParams{})
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	year, _ := page.Data[0].Get(media.FieldReleaseYear)
	require.Equal(t, 2020.0, year)
	_, hasCast := page.Data[0].Get(media.FieldCast)
	require.False(t, hasCast)

	rows, err := svc.CountryBreakdown(ctx, "United States")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []media.MediaTypeCount{{Type: "Movie", Count: 2}}, rows[0].MediaTypes)
}

func TestImportEmptyInput(t *testing.T) {
	im := New(nil, media.TitleSchema)
	_, err := im.Import(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}

func TestImportCancelled(t *testing.T) {
	svc := media.NewService(store.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(svc, media.TitleSchema).Import(ctx, strings.NewReader(titlesCSV))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, res.Inserted)
}
