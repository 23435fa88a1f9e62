package consultation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/safety"
)

func consultationRows(c *Consultation) *sqlmock.Rows {
	cols := make([]string, len(consultationColumns))
	for i, col := range consultationColumns {
		cols[i] = col.(string)
	}
	now := time.Now()
	return sqlmock.NewRows(cols).AddRow(
		c.ID.String(), c.AppointmentID.String(), c.PatientID.String(), c.ClinicianID.String(),
		string(c.Status), c.Generation, c.Notes, c.Diagnosis, c.Prescription, nil, nil, nil, nil,
		"[]", string(safety.StatusSkipped), false, nil, nil, now, now)
}

func newMockRepo(t *testing.T) (*postgresRepo, sqlmock.Sqlmock) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &postgresRepo{db: db}, m
}

func TestGetNotFound(t *testing.T) {
	repo, m := newMockRepo(t)
	m.ExpectQuery(`SELECT .* FROM "consultations"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), uuid.New())

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestGetScansConsultation(t *testing.T) {
	repo, m := newMockRepo(t)
	c := &Consultation{ID: uuid.New(), AppointmentID: uuid.New(), PatientID: uuid.New(), ClinicianID: uuid.New(), Status: StatusInProgress, Generation: 4}
	m.ExpectQuery(`SELECT .* FROM "consultations" WHERE \("id" = '` + c.ID.String() + `'\)`).WillReturnRows(consultationRows(c))

	got, err := repo.Get(context.Background(), c.ID)

	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, int64(4), got.Generation)
	assert.Nil(t, got.UrgencyScore)
	assert.Empty(t, got.SafetyWarnings)
	assert.NotNil(t, got.SafetyWarnings)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestSaveTranscriptSuperseded(t *testing.T) {
	repo, m := newMockRepo(t)
	text := "stale transcript"
	audio := &AudioFile{ID: uuid.New(), ConsultationID: uuid.New(), Transcription: &text}
	m.ExpectExec(`UPDATE "audio_files" SET .* WHERE .*"consultation_id" IN \(SELECT "id" FROM "consultations" WHERE .*"generation" = 2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	saved, err := repo.SaveTranscript(context.Background(), audio, 2)

	require.NoError(t, err)
	assert.False(t, saved)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestMarkFailedCurrentGeneration(t *testing.T) {
	repo, m := newMockRepo(t)
	id := uuid.New()
	m.ExpectExec(`UPDATE "consultations" SET .*"requires_manual_review"=TRUE.*"status"='FAILED'.* WHERE .*"generation" = 5`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	marked, err := repo.MarkFailed(context.Background(), id, 5)

	require.NoError(t, err)
	assert.True(t, marked)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestCommitNoteSkipsNewerGeneration(t *testing.T) {
	repo, m := newMockRepo(t)
	stored := &Consultation{ID: uuid.New(), AppointmentID: uuid.New(), PatientID: uuid.New(), ClinicianID: uuid.New(), Status: StatusInProgress, Generation: 3}
	stale := *stored
	stale.Generation = 2

	m.ExpectBegin()
	m.ExpectQuery(`SELECT .* FROM "consultations" .* FOR UPDATE`).WillReturnRows(consultationRows(stored))
	m.ExpectCommit()

	applied, err := repo.CommitNote(context.Background(), NoteCommit{
		Consultation: &stale,
		Note:         &StructuredNote{ID: uuid.New(), ConsultationID: stored.ID},
	})

	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestCommitNoteWritesNoteAndConsultation(t *testing.T) {
	repo, m := newMockRepo(t)
	c := &Consultation{ID: uuid.New(), AppointmentID: uuid.New(), PatientID: uuid.New(), ClinicianID: uuid.New(), Status: StatusInProgress, Generation: 1}

	m.ExpectBegin()
	m.ExpectQuery(`SELECT .* FROM "consultations" .* FOR UPDATE`).WillReturnRows(consultationRows(c))
	m.ExpectExec(`INSERT INTO "soap_notes" .* ON CONFLICT \(consultation_id\) DO UPDATE SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`UPDATE "consultations" SET .* WHERE .*"generation" = 1`).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	applied, err := repo.CommitNote(context.Background(), NoteCommit{
		Consultation: c,
		Note:         &StructuredNote{ID: uuid.New(), ConsultationID: c.ID, Sections: SOAPSections{Plan: "rest"}, GeneratedByAI: true},
	})

	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestReplaceAudioRejectsCompleted(t *testing.T) {
	repo, m := newMockRepo(t)
	c := &Consultation{ID: uuid.New(), AppointmentID: uuid.New(), PatientID: uuid.New(), ClinicianID: uuid.New(), Status: StatusCompleted, Generation: 2}

	m.ExpectBegin()
	m.ExpectQuery(`SELECT .* FROM "consultations" .* FOR UPDATE`).WillReturnRows(consultationRows(c))
	m.ExpectRollback()

	_, _, err := repo.ReplaceAudio(context.Background(), c.ID, &AudioFile{ID: uuid.New(), ConsultationID: c.ID})

	assert.True(t, apperr.Is(err, apperr.KindStateConflict))
	assert.NoError(t, m.ExpectationsWereMet())
}

func newConsultation(status Status, generation int64) *Consultation {
	return &Consultation{ID: uuid.New(), AppointmentID: uuid.New(), PatientID: uuid.New(), ClinicianID: uuid.New(), Status: status, Generation: generation}
}

func audioRows(consultationID uuid.UUID, refs ...string) *sqlmock.Rows {
	cols := make([]string, len(audioColumns))
	for i, col := range audioColumns {
		cols[i] = col.(string)
	}
	rows := sqlmock.NewRows(cols)
	for _, ref := range refs {
		rows.AddRow(uuid.New().String(), consultationID.String(), string(UploaderClinician), string(FileConsultation),
			"old.mp3", ref, 1024, "audio/mpeg", "old transcript", nil, "[]", true, time.Now())
	}
	return rows
}

func TestReplaceAudioCleanSlate(t *testing.T) {
	repo, m := newMockRepo(t)
	c := newConsultation(StatusInProgress, 2)
	c.Notes, c.Diagnosis, c.Prescription = "old notes", "Old diagnosis", "Old prescription"
	audio := &AudioFile{ID: uuid.New(), ConsultationID: c.ID, FileType: FileConsultation, UploadedBy: UploaderClinician, StorageRef: "new/ref"}

	m.ExpectBegin()
	m.ExpectQuery(`SELECT .* FROM "consultations" .* FOR UPDATE`).WillReturnRows(consultationRows(c))
	m.ExpectQuery(`SELECT .* FROM "audio_files"`).WillReturnRows(audioRows(c.ID, "old/a", "old/b"))
	m.ExpectExec(`DELETE FROM "soap_notes" WHERE \("consultation_id" = '` + c.ID.String() + `'\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`DELETE FROM "audio_files" WHERE \("consultation_id" = '` + c.ID.String() + `'\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	m.ExpectExec(`INSERT INTO "audio_files" .*'new/ref'`).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`UPDATE "consultations" SET "diagnosis"='',.*"generation"=3,"notes"='',"prescription"='',.*"status"='IN_PROGRESS'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	got, removed, err := repo.ReplaceAudio(context.Background(), c.ID, audio)

	require.NoError(t, err)
	assert.Equal(t, []string{"old/a", "old/b"}, removed)
	assert.Equal(t, int64(3), got.Generation)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Empty(t, got.Notes)
	assert.Empty(t, got.Diagnosis)
	assert.Empty(t, got.Prescription)
	assert.NotNil(t, got.StartTime)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestRestartClearsVerificationAndBumpsGeneration(t *testing.T) {
	repo, m := newMockRepo(t)
	c := newConsultation(StatusFailed, 4)
	audioID := uuid.New()

	m.ExpectBegin()
	m.ExpectQuery(`SELECT .* FROM "consultations" .* FOR UPDATE`).WillReturnRows(consultationRows(c))
	m.ExpectExec(`UPDATE "audio_files" SET "is_transcript_verified"=FALSE WHERE .*"id" = '` + audioID.String() + `'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`UPDATE "consultations" SET .*"generation"=5,.*"status"='IN_PROGRESS'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	got, err := repo.Restart(context.Background(), c.ID, audioID)

	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Generation)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestResumeRejectsScheduled(t *testing.T) {
	repo, m := newMockRepo(t)
	c := newConsultation(StatusScheduled, 0)

	m.ExpectBegin()
	m.ExpectQuery(`SELECT .* FROM "consultations" .* FOR UPDATE`).WillReturnRows(consultationRows(c))
	m.ExpectRollback()

	_, err := repo.Resume(context.Background(), c.ID)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStateConflict))
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestResumeReopensFailedWithoutNewGeneration(t *testing.T) {
	repo, m := newMockRepo(t)
	c := newConsultation(StatusFailed, 3)

	m.ExpectBegin()
	m.ExpectQuery(`SELECT .* FROM "consultations" .* FOR UPDATE`).WillReturnRows(consultationRows(c))
	m.ExpectExec(`UPDATE "consultations" SET .*"status"='IN_PROGRESS'`).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	got, err := repo.Resume(context.Background(), c.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, int64(3), got.Generation)
	assert.NoError(t, m.ExpectationsWereMet())
}
